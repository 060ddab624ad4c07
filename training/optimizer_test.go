package training

import (
	"math"
	"testing"

	"github.com/tsawler/go-vocoder/tensor"
)

func newParam(t *testing.T, values []float32) *tensor.Tensor {
	t.Helper()
	p, err := tensor.NewTensor([]int{len(values)}, tensor.Float32, values)
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	p.SetRequiresGrad(true)
	return p
}

// quadraticLoss builds mean((x - c)^2) through the autograd graph.
func quadraticLoss(x *tensor.Tensor, c float32) *tensor.Tensor {
	target, err := tensor.Full(x.Shape, c)
	if err != nil {
		panic(err)
	}
	diff := tensor.SubAutograd(x, target)
	return tensor.MeanAutograd(tensor.MulAutograd(diff, diff))
}

func TestAdamValidation(t *testing.T) {
	if _, err := NewAdam(nil, DefaultAdamConfig(0.01), nil); err == nil {
		t.Error("expected an error for an empty parameter set")
	}
	p := newParam(t, []float32{1})
	if _, err := NewAdam([]*tensor.Tensor{p}, DefaultAdamConfig(0), nil); err == nil {
		t.Error("expected an error for a non-positive learning rate")
	}
}

func TestAdamConvergesOnQuadratic(t *testing.T) {
	x := newParam(t, []float32{5.0, -3.0})
	opt, err := NewAdam([]*tensor.Tensor{x}, DefaultAdamConfig(0.1), nil)
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}

	const target = 1.0
	for i := 0; i < 300; i++ {
		opt.ZeroGrad()
		loss := quadraticLoss(x, target)
		if err := loss.Backward(); err != nil {
			t.Fatalf("backward failed at iteration %d: %v", i, err)
		}
		if err := opt.Step(); err != nil {
			t.Fatalf("step failed at iteration %d: %v", i, err)
		}
	}

	data, err := x.GetFloat32Data()
	if err != nil {
		t.Fatalf("GetFloat32Data failed: %v", err)
	}
	for i, v := range data {
		if math.Abs(float64(v)-target) > 0.2 {
			t.Errorf("element %d did not converge: got %f, want %f", i, v, target)
		}
	}
	if opt.StepCount() != 300 {
		t.Errorf("expected 300 applied steps, got %d", opt.StepCount())
	}
}

func TestAdamSkipsNonFiniteGradients(t *testing.T) {
	x := newParam(t, []float32{2.0})
	scaler := NewGradScaler()
	opt, err := NewAdam([]*tensor.Tensor{x}, DefaultAdamConfig(0.1), scaler)
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}

	scaleBefore := scaler.Scale()

	// blow the gradient up to Inf inside the graph
	opt.ZeroGrad()
	loss := tensor.MeanAutograd(tensor.ScaleAutograd(x, float32(math.Inf(1))))
	if err := loss.Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}
	if err := opt.Step(); err != nil {
		t.Fatalf("step failed: %v", err)
	}

	data, _ := x.GetFloat32Data()
	if data[0] != 2.0 {
		t.Errorf("parameter should be untouched after a skipped step, got %f", data[0])
	}
	if opt.StepCount() != 0 {
		t.Errorf("skipped steps must not advance the step count, got %d", opt.StepCount())
	}
	if got := scaler.Scale(); got != scaleBefore*0.5 {
		t.Errorf("scale should back off to %f, got %f", scaleBefore*0.5, got)
	}

	// a finite step afterwards still applies
	opt.ZeroGrad()
	loss = quadraticLoss(x, 0.0)
	if err := loss.Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}
	if err := opt.Step(); err != nil {
		t.Fatalf("step failed: %v", err)
	}
	data, _ = x.GetFloat32Data()
	if data[0] == 2.0 {
		t.Error("finite step should update the parameter")
	}
	if opt.StepCount() != 1 {
		t.Errorf("expected 1 applied step, got %d", opt.StepCount())
	}
}

func TestAdamStateRoundTrip(t *testing.T) {
	x := newParam(t, []float32{4.0, -2.0, 0.5})
	scaler := NewGradScaler()
	opt, err := NewAdam([]*tensor.Tensor{x}, DefaultAdamConfig(0.05), scaler)
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		opt.ZeroGrad()
		loss := quadraticLoss(x, 1.0)
		if err := loss.Backward(); err != nil {
			t.Fatalf("backward failed: %v", err)
		}
		if err := opt.Step(); err != nil {
			t.Fatalf("step failed: %v", err)
		}
	}

	state, err := opt.State()
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if state.Type != "Adam" {
		t.Errorf("expected type Adam, got %q", state.Type)
	}
	if state.StepCount != 10 {
		t.Errorf("expected step count 10, got %d", state.StepCount)
	}
	if state.LossScale != scaler.Scale() {
		t.Errorf("expected loss scale %f, got %f", scaler.Scale(), state.LossScale)
	}
	if len(state.StateData) != 2 {
		t.Fatalf("expected m and v entries for one parameter, got %d", len(state.StateData))
	}

	y := newParam(t, []float32{0, 0, 0})
	restoredScaler := NewGradScaler()
	restored, err := NewAdam([]*tensor.Tensor{y}, DefaultAdamConfig(0.5), restoredScaler)
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}
	if err := restored.LoadState(state); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if restored.GetLR() != 0.05 {
		t.Errorf("expected restored learning rate 0.05, got %f", restored.GetLR())
	}
	if restored.StepCount() != 10 {
		t.Errorf("expected restored step count 10, got %d", restored.StepCount())
	}
	if restoredScaler.Scale() != scaler.Scale() {
		t.Errorf("expected restored scale %f, got %f", scaler.Scale(), restoredScaler.Scale())
	}
}

func TestAdamLoadStateRejectsMismatch(t *testing.T) {
	x := newParam(t, []float32{1, 2})
	opt, err := NewAdam([]*tensor.Tensor{x}, DefaultAdamConfig(0.01), nil)
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}

	if err := opt.LoadState(nil); err == nil {
		t.Error("expected an error for nil state")
	}

	state, _ := opt.State()
	state.Type = "SGD"
	if err := opt.LoadState(state); err == nil {
		t.Error("expected an error for an optimizer type mismatch")
	}

	y := newParam(t, []float32{1, 2, 3})
	other, err := NewAdam([]*tensor.Tensor{y}, DefaultAdamConfig(0.01), nil)
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}
	good, _ := opt.State()
	if err := other.LoadState(good); err == nil {
		t.Error("expected an error for a parameter size mismatch")
	}
}

func TestGradScaler(t *testing.T) {
	s := NewGradScaler()
	if s.Scale() != 1024 {
		t.Fatalf("expected initial scale 1024, got %f", s.Scale())
	}

	t.Run("SetScale", func(t *testing.T) {
		if err := s.SetScale(0.5); err == nil {
			t.Error("expected an error for a scale below 1")
		}
		if err := s.SetScale(256); err != nil {
			t.Fatalf("SetScale failed: %v", err)
		}
		if s.Scale() != 256 {
			t.Errorf("expected 256, got %f", s.Scale())
		}
	})

	t.Run("Unscale", func(t *testing.T) {
		s := NewGradScaler()
		x := newParam(t, []float32{1, 1})
		loss := tensor.MeanAutograd(s.ScaleLoss(tensor.SumAutograd(x)))
		if err := loss.Backward(); err != nil {
			t.Fatalf("backward failed: %v", err)
		}
		s.Unscale([]*tensor.Tensor{x})
		grad, err := x.Grad().GetFloat32Data()
		if err != nil {
			t.Fatalf("grad data: %v", err)
		}
		for i, g := range grad {
			if math.Abs(float64(g)-1.0) > 1e-5 {
				t.Errorf("grad %d: expected 1.0 after unscale, got %f", i, g)
			}
		}
	})

	t.Run("GrowthAfterInterval", func(t *testing.T) {
		s := NewGradScaler()
		for i := 0; i < 2000; i++ {
			s.noteGoodStep()
		}
		if s.Scale() != 2048 {
			t.Errorf("expected 2048 after growth interval, got %f", s.Scale())
		}
	})
}
