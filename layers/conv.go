package layers

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tsawler/go-vocoder/tensor"
)

// Conv1D implements a 1-D convolution layer over (B, T, C) input
type Conv1D struct {
	weight   *tensor.Tensor // (K, Cin, Cout)
	bias     *tensor.Tensor // (Cout), nil when bias is disabled
	stride   int
	pad      int
	training bool
	half     bool
}

// NewConv1D creates a new Conv1D layer with Xavier/Glorot uniform
// initialization: W ~ U(-sqrt(6/(fan_in + fan_out)), +sqrt(...)).
func NewConv1D(inChannels, outChannels, kernelSize, stride, pad int, bias bool, rng *rand.Rand) (*Conv1D, error) {
	if inChannels <= 0 || outChannels <= 0 || kernelSize <= 0 {
		return nil, fmt.Errorf("conv1d dimensions must be positive: in=%d out=%d kernel=%d",
			inChannels, outChannels, kernelSize)
	}

	fanIn := kernelSize * inChannels
	fanOut := kernelSize * outChannels
	bound := float32(math.Sqrt(6.0 / float64(fanIn+fanOut)))

	weight, err := tensor.RandomUniform([]int{kernelSize, inChannels, outChannels}, bound, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %w", err)
	}
	weight.SetRequiresGrad(true)

	conv := &Conv1D{
		weight:   weight,
		stride:   stride,
		pad:      pad,
		training: true,
	}

	if bias {
		biasT, err := tensor.Zeros([]int{outChannels})
		if err != nil {
			return nil, fmt.Errorf("failed to create bias tensor: %w", err)
		}
		biasT.SetRequiresGrad(true)
		conv.bias = biasT
	}

	return conv, nil
}

func (c *Conv1D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 3 {
		return nil, fmt.Errorf("conv1d expects (B, T, C) input, got shape %v", input.Shape)
	}

	output := tensor.Conv1DAutograd(input, c.weight, c.bias, c.stride, c.pad)
	if c.half {
		if err := tensor.QuantizeHalf(output); err != nil {
			return nil, err
		}
	}
	return output, nil
}

func (c *Conv1D) Parameters() []*tensor.Tensor {
	if c.bias != nil {
		return []*tensor.Tensor{c.weight, c.bias}
	}
	return []*tensor.Tensor{c.weight}
}

func (c *Conv1D) Train()           { c.training = true }
func (c *Conv1D) Eval()            { c.training = false }
func (c *Conv1D) IsTraining() bool { return c.training }

func (c *Conv1D) SetHalfPrecision(enabled bool) { c.half = enabled }

// ConvTranspose1D implements the upsampling counterpart of Conv1D.
// With kernel = 2*stride and pad = stride/2 it exactly multiplies the
// time dimension by stride.
type ConvTranspose1D struct {
	weight   *tensor.Tensor
	bias     *tensor.Tensor
	stride   int
	pad      int
	training bool
	half     bool
}

// NewConvTranspose1D creates a transposed convolution layer
func NewConvTranspose1D(inChannels, outChannels, kernelSize, stride, pad int, bias bool, rng *rand.Rand) (*ConvTranspose1D, error) {
	if inChannels <= 0 || outChannels <= 0 || kernelSize <= 0 {
		return nil, fmt.Errorf("conv transpose dimensions must be positive: in=%d out=%d kernel=%d",
			inChannels, outChannels, kernelSize)
	}

	fanIn := kernelSize * inChannels
	fanOut := kernelSize * outChannels
	bound := float32(math.Sqrt(6.0 / float64(fanIn+fanOut)))

	weight, err := tensor.RandomUniform([]int{kernelSize, inChannels, outChannels}, bound, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %w", err)
	}
	weight.SetRequiresGrad(true)

	conv := &ConvTranspose1D{
		weight:   weight,
		stride:   stride,
		pad:      pad,
		training: true,
	}

	if bias {
		biasT, err := tensor.Zeros([]int{outChannels})
		if err != nil {
			return nil, fmt.Errorf("failed to create bias tensor: %w", err)
		}
		biasT.SetRequiresGrad(true)
		conv.bias = biasT
	}

	return conv, nil
}

func (c *ConvTranspose1D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 3 {
		return nil, fmt.Errorf("conv transpose expects (B, T, C) input, got shape %v", input.Shape)
	}

	output := tensor.ConvTranspose1DAutograd(input, c.weight, c.bias, c.stride, c.pad)
	if c.half {
		if err := tensor.QuantizeHalf(output); err != nil {
			return nil, err
		}
	}
	return output, nil
}

func (c *ConvTranspose1D) Parameters() []*tensor.Tensor {
	if c.bias != nil {
		return []*tensor.Tensor{c.weight, c.bias}
	}
	return []*tensor.Tensor{c.weight}
}

func (c *ConvTranspose1D) Train()           { c.training = true }
func (c *ConvTranspose1D) Eval()            { c.training = false }
func (c *ConvTranspose1D) IsTraining() bool { return c.training }

func (c *ConvTranspose1D) SetHalfPrecision(enabled bool) { c.half = enabled }
