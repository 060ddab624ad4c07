package training

import (
	"fmt"

	"github.com/tsawler/go-vocoder/tensor"
)

const (
	defaultLossScale      = 1024.0 // 2^10 of extra gradient headroom
	defaultGrowthFactor   = 2.0
	defaultBackoffFactor  = 0.5
	defaultGrowthInterval = 2000
	minLossScale          = 1.0
)

// GradScaler implements dynamic loss scaling for mixed-precision
// training. The loss is multiplied by the current scale before
// differentiation so small gradients survive half-precision rounding;
// the resulting gradients are divided back down before the optimizer
// applies them. The scale adapts: it halves whenever a step produced
// non-finite gradients and doubles after a sustained run of finite ones.
type GradScaler struct {
	scale          float64
	growthFactor   float64
	backoffFactor  float64
	growthInterval int
	goodSteps      int
}

// NewGradScaler creates a scaler with the standard dynamic-scaling
// schedule: initial scale 1024, doubling every 2000 finite steps,
// halving on overflow.
func NewGradScaler() *GradScaler {
	return &GradScaler{
		scale:          defaultLossScale,
		growthFactor:   defaultGrowthFactor,
		backoffFactor:  defaultBackoffFactor,
		growthInterval: defaultGrowthInterval,
	}
}

// Scale returns the current loss scale.
func (s *GradScaler) Scale() float64 {
	return s.scale
}

// SetScale overrides the current loss scale, used when restoring from a
// checkpoint.
func (s *GradScaler) SetScale(scale float64) error {
	if scale < minLossScale {
		return fmt.Errorf("loss scale must be at least %v, got %v", minLossScale, scale)
	}
	s.scale = scale
	s.goodSteps = 0
	return nil
}

// ScaleLoss multiplies the loss by the current scale inside the
// autograd graph, so the backward pass produces scaled gradients.
func (s *GradScaler) ScaleLoss(loss *tensor.Tensor) *tensor.Tensor {
	return tensor.ScaleAutograd(loss, float32(s.scale))
}

// Unscale divides the accumulated gradients of the given parameters by
// the current scale, restoring true gradient magnitudes before the
// optimizer applies them. Gradients that overflowed stay non-finite and
// are caught by the optimizer's own check.
func (s *GradScaler) Unscale(params []*tensor.Tensor) {
	inv := float32(1.0 / s.scale)
	for _, p := range params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		data, err := grad.GetFloat32Data()
		if err != nil {
			continue
		}
		for i := range data {
			data[i] *= inv
		}
	}
}

// noteOverflow is called by the optimizer when a step's gradients were
// not finite: the update is skipped and the scale backs off.
func (s *GradScaler) noteOverflow() {
	s.scale *= s.backoffFactor
	if s.scale < minLossScale {
		s.scale = minLossScale
	}
	s.goodSteps = 0
}

// noteGoodStep is called by the optimizer after a finite-gradient
// update; a sustained run of them grows the scale.
func (s *GradScaler) noteGoodStep() {
	s.goodSteps++
	if s.goodSteps >= s.growthInterval {
		s.scale *= s.growthFactor
		s.goodSteps = 0
	}
}
