package training

import (
	"fmt"
	"math"

	"github.com/tsawler/go-vocoder/checkpoints"
	"github.com/tsawler/go-vocoder/tensor"
)

// Optimizer updates a fixed set of parameter tensors from their
// accumulated gradients. Implementations skip the update (and back off
// the attached loss scaler) when a gradient is not finite, so callers
// can invoke Step unconditionally after every backward pass.
type Optimizer interface {
	Step() error
	ZeroGrad()
	GetLR() float64
	SetLR(lr float64)
	Scaler() *GradScaler
	State() (*checkpoints.OptimizerState, error)
	LoadState(state *checkpoints.OptimizerState) error
}

// Adam implements the Adam update rule with bias correction. When a
// GradScaler is attached, steps whose gradients contain NaN or Inf are
// skipped and reported to the scaler instead of being applied.
type Adam struct {
	params       []*tensor.Tensor
	learningRate float64
	beta1        float64
	beta2        float64
	epsilon      float64
	stepCount    int

	m [][]float32
	v [][]float32

	scaler *GradScaler
}

// AdamConfig carries the Adam hyperparameters.
type AdamConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
}

// DefaultAdamConfig returns the usual Adam defaults at the given
// learning rate.
func DefaultAdamConfig(lr float64) AdamConfig {
	return AdamConfig{
		LearningRate: lr,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

// NewAdam creates an Adam optimizer over the given parameters. The
// scaler may be nil for full-precision training.
func NewAdam(params []*tensor.Tensor, cfg AdamConfig, scaler *GradScaler) (*Adam, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("optimizer needs at least one parameter")
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", cfg.LearningRate)
	}

	m := make([][]float32, len(params))
	v := make([][]float32, len(params))
	for i, p := range params {
		m[i] = make([]float32, p.Numel())
		v[i] = make([]float32, p.Numel())
	}

	return &Adam{
		params:       params,
		learningRate: cfg.LearningRate,
		beta1:        cfg.Beta1,
		beta2:        cfg.Beta2,
		epsilon:      cfg.Epsilon,
		m:            m,
		v:            v,
		scaler:       scaler,
	}, nil
}

// Step applies one Adam update. If any parameter's gradient is not
// finite the whole update is skipped; with a scaler attached the skip
// also backs off the loss scale.
func (a *Adam) Step() error {
	grads := make([][]float32, len(a.params))
	for i, p := range a.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		data, err := grad.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("parameter %d gradient: %w", i, err)
		}
		for _, g := range data {
			if math.IsNaN(float64(g)) || math.IsInf(float64(g), 0) {
				if a.scaler != nil {
					a.scaler.noteOverflow()
				}
				return nil
			}
		}
		grads[i] = data
	}

	a.stepCount++
	bc1 := 1.0 - math.Pow(a.beta1, float64(a.stepCount))
	bc2 := 1.0 - math.Pow(a.beta2, float64(a.stepCount))

	for i, p := range a.params {
		grad := grads[i]
		if grad == nil {
			continue
		}
		weights, err := p.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("parameter %d data: %w", i, err)
		}
		m := a.m[i]
		v := a.v[i]
		for j := range weights {
			g := float64(grad[j])
			m[j] = float32(a.beta1*float64(m[j]) + (1-a.beta1)*g)
			v[j] = float32(a.beta2*float64(v[j]) + (1-a.beta2)*g*g)
			mHat := float64(m[j]) / bc1
			vHat := float64(v[j]) / bc2
			weights[j] -= float32(a.learningRate * mHat / (math.Sqrt(vHat) + a.epsilon))
		}
	}

	if a.scaler != nil {
		a.scaler.noteGoodStep()
	}
	return nil
}

// ZeroGrad clears the gradients of every parameter.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (a *Adam) GetLR() float64 {
	return a.learningRate
}

// SetLR replaces the learning rate.
func (a *Adam) SetLR(lr float64) {
	a.learningRate = lr
}

// Scaler returns the attached loss scaler, or nil for full precision.
func (a *Adam) Scaler() *GradScaler {
	return a.scaler
}

// StepCount reports how many updates have been applied (skipped steps
// excluded).
func (a *Adam) StepCount() int {
	return a.stepCount
}

// State serializes the optimizer for checkpointing: hyperparameters,
// step count, loss scale, and the per-parameter moment accumulators.
func (a *Adam) State() (*checkpoints.OptimizerState, error) {
	state := &checkpoints.OptimizerState{
		Type:         "Adam",
		LearningRate: a.learningRate,
		StepCount:    uint64(a.stepCount),
	}
	if a.scaler != nil {
		state.LossScale = a.scaler.Scale()
	}
	for i, p := range a.params {
		shape := p.Size()
		state.StateData = append(state.StateData,
			checkpoints.OptimizerTensor{
				Name:      fmt.Sprintf("m_%d", i),
				Shape:     shape,
				Data:      append([]float32(nil), a.m[i]...),
				StateType: "m",
			},
			checkpoints.OptimizerTensor{
				Name:      fmt.Sprintf("v_%d", i),
				Shape:     shape,
				Data:      append([]float32(nil), a.v[i]...),
				StateType: "v",
			})
	}
	return state, nil
}

// LoadState restores the optimizer from a checkpoint. The parameter
// set must match the one the state was saved from.
func (a *Adam) LoadState(state *checkpoints.OptimizerState) error {
	if state == nil {
		return fmt.Errorf("optimizer state is nil")
	}
	if state.Type != "Adam" {
		return fmt.Errorf("optimizer type mismatch: checkpoint has %q, want Adam", state.Type)
	}

	byName := make(map[string][]float32, len(state.StateData))
	for _, st := range state.StateData {
		byName[st.Name] = st.Data
	}
	for i, p := range a.params {
		m, ok := byName[fmt.Sprintf("m_%d", i)]
		if !ok {
			return fmt.Errorf("checkpoint missing momentum state for parameter %d", i)
		}
		v, ok := byName[fmt.Sprintf("v_%d", i)]
		if !ok {
			return fmt.Errorf("checkpoint missing variance state for parameter %d", i)
		}
		if len(m) != p.Numel() || len(v) != p.Numel() {
			return fmt.Errorf("optimizer state size mismatch for parameter %d: have %d/%d elements, want %d",
				i, len(m), len(v), p.Numel())
		}
		copy(a.m[i], m)
		copy(a.v[i], v)
	}

	a.learningRate = state.LearningRate
	a.stepCount = int(state.StepCount)
	if a.scaler != nil && state.LossScale > 0 {
		if err := a.scaler.SetScale(state.LossScale); err != nil {
			return fmt.Errorf("restore loss scale: %w", err)
		}
	}
	return nil
}
