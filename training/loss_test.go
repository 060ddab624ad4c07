package training

import (
	"math"
	"testing"

	"github.com/tsawler/go-vocoder/tensor"
)

func scalarItem(t *testing.T, x *tensor.Tensor) float32 {
	t.Helper()
	v, err := x.Item()
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	return v
}

func TestReluError(t *testing.T) {
	ones, _ := tensor.Ones([]int{2, 3})
	zeros, _ := tensor.Zeros([]int{2, 3})

	t.Run("PredictionsAtTarget", func(t *testing.T) {
		if v := scalarItem(t, ReluError(1.0, ones)); v != 0 {
			t.Errorf("expected 0, got %f", v)
		}
	})

	t.Run("PredictionsBelowTarget", func(t *testing.T) {
		if v := scalarItem(t, ReluError(1.0, zeros)); v != 1 {
			t.Errorf("expected 1, got %f", v)
		}
	})

	t.Run("OneSided", func(t *testing.T) {
		// positive predictions never penalized against a zero target
		pred, _ := tensor.NewTensor([]int{4}, tensor.Float32, []float32{0.5, 2.0, 0.1, 3.0})
		if v := scalarItem(t, ReluError(0.0, pred)); v != 0 {
			t.Errorf("expected 0, got %f", v)
		}
	})

	t.Run("MixedSigns", func(t *testing.T) {
		// only the shortfalls contribute: relu(1-2)=0, relu(1-0.5)=0.5,
		// relu(1-(-1))=2, relu(1-1)=0 -> mean 0.625
		pred, _ := tensor.NewTensor([]int{4}, tensor.Float32, []float32{2.0, 0.5, -1.0, 1.0})
		if v := scalarItem(t, ReluError(1.0, pred)); math.Abs(float64(v)-0.625) > 1e-6 {
			t.Errorf("expected 0.625, got %f", v)
		}
	})
}

func TestMAEError(t *testing.T) {
	a, _ := tensor.NewTensor([]int{4}, tensor.Float32, []float32{1, 2, 3, 4})
	b, _ := tensor.NewTensor([]int{4}, tensor.Float32, []float32{2, 2, 1, 5})
	// |1-2|+|2-2|+|3-1|+|4-5| = 4, mean = 1
	if v := scalarItem(t, MAEError(a, b)); math.Abs(float64(v)-1.0) > 1e-6 {
		t.Errorf("expected 1.0, got %f", v)
	}
	if v := scalarItem(t, MAEError(a, a)); v != 0 {
		t.Errorf("identical tensors should give 0, got %f", v)
	}
}

func TestAddLoss(t *testing.T) {
	x, _ := tensor.Full([]int{1}, 2.0)
	y, _ := tensor.Full([]int{1}, 3.0)

	if got := addLoss(nil, x); got != x {
		t.Error("nil accumulator should pass the term through")
	}
	if v := scalarItem(t, addLoss(x, y)); v != 5 {
		t.Errorf("expected 5, got %f", v)
	}
}
