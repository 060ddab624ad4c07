package layers

import (
	"fmt"

	"github.com/tsawler/go-vocoder/tensor"
)

// Module interface defines methods that all neural network layers must implement
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor // Returns trainable parameters (tensors with requiresGrad=true)
	Train()                       // Sets module to training mode
	Eval()                        // Sets module to evaluation mode
	IsTraining() bool             // Returns true if in training mode
}

// HalfPrecisionModule is implemented by modules whose forward pass can
// round activations through float16.
type HalfPrecisionModule interface {
	SetHalfPrecision(enabled bool)
}

// Sequential chains modules, feeding each output into the next input
type Sequential struct {
	modules  []Module
	training bool
}

// NewSequential creates a Sequential container from the given modules
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{
		modules:  modules,
		training: true,
	}
}

// Forward passes input through all modules in sequence
func (s *Sequential) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	output := input
	var err error
	for i, module := range s.modules {
		output, err = module.Forward(output)
		if err != nil {
			return nil, fmt.Errorf("sequential module %d forward failed: %w", i, err)
		}
	}
	return output, nil
}

// Parameters returns all parameters from all modules
func (s *Sequential) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Train sets all modules to training mode
func (s *Sequential) Train() {
	s.training = true
	for _, module := range s.modules {
		module.Train()
	}
}

// Eval sets all modules to evaluation mode
func (s *Sequential) Eval() {
	s.training = false
	for _, module := range s.modules {
		module.Eval()
	}
}

func (s *Sequential) IsTraining() bool {
	return s.training
}

// SetHalfPrecision propagates the half-precision flag to every module
// that supports it.
func (s *Sequential) SetHalfPrecision(enabled bool) {
	for _, module := range s.modules {
		if hp, ok := module.(HalfPrecisionModule); ok {
			hp.SetHalfPrecision(enabled)
		}
	}
}

// Modules exposes the contained modules in order.
func (s *Sequential) Modules() []Module {
	return s.modules
}
