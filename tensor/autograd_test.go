package tensor

import (
	"math"
	"math/rand"
	"testing"
)

func scalarValue(t *testing.T, x *Tensor) float32 {
	t.Helper()
	v, err := x.Item()
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	return v
}

func gradData(t *testing.T, x *Tensor) []float32 {
	t.Helper()
	if x.Grad() == nil {
		t.Fatal("expected a gradient, got nil")
	}
	data, err := x.Grad().GetFloat32Data()
	if err != nil {
		t.Fatalf("gradient data: %v", err)
	}
	return data
}

func TestAddBackward(t *testing.T) {
	x1, _ := NewTensor([]int{1}, Float32, []float32{3.0})
	x2, _ := NewTensor([]int{1}, Float32, []float32{4.0})
	x1.SetRequiresGrad(true)
	x2.SetRequiresGrad(true)

	y := AddAutograd(x1, x2)
	if got := scalarValue(t, y); got != 7.0 {
		t.Errorf("forward: expected 7.0, got %f", got)
	}
	if err := y.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	if g := gradData(t, x1)[0]; g != 1.0 {
		t.Errorf("expected x1 gradient 1.0, got %f", g)
	}
	if g := gradData(t, x2)[0]; g != 1.0 {
		t.Errorf("expected x2 gradient 1.0, got %f", g)
	}
}

func TestMulBackward(t *testing.T) {
	x1, _ := NewTensor([]int{1}, Float32, []float32{3.0})
	x2, _ := NewTensor([]int{1}, Float32, []float32{4.0})
	x1.SetRequiresGrad(true)
	x2.SetRequiresGrad(true)

	y := MulAutograd(x1, x2)
	if err := y.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	if g := gradData(t, x1)[0]; g != 4.0 {
		t.Errorf("expected x1 gradient 4.0, got %f", g)
	}
	if g := gradData(t, x2)[0]; g != 3.0 {
		t.Errorf("expected x2 gradient 3.0, got %f", g)
	}
}

func TestMeanBackward(t *testing.T) {
	x, _ := NewTensor([]int{4}, Float32, []float32{1, 2, 3, 4})
	x.SetRequiresGrad(true)

	y := MeanAutograd(x)
	if got := scalarValue(t, y); got != 2.5 {
		t.Errorf("forward: expected 2.5, got %f", got)
	}
	if err := y.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	for i, g := range gradData(t, x) {
		if g != 0.25 {
			t.Errorf("element %d: expected gradient 0.25, got %f", i, g)
		}
	}
}

func TestReLUBackward(t *testing.T) {
	x, _ := NewTensor([]int{4}, Float32, []float32{-2, -0.5, 0.5, 2})
	x.SetRequiresGrad(true)

	y := SumAutograd(ReLUAutograd(x))
	if got := scalarValue(t, y); got != 2.5 {
		t.Errorf("forward: expected 2.5, got %f", got)
	}
	if err := y.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	expected := []float32{0, 0, 1, 1}
	for i, g := range gradData(t, x) {
		if g != expected[i] {
			t.Errorf("element %d: expected gradient %f, got %f", i, expected[i], g)
		}
	}
}

func TestTanhBackward(t *testing.T) {
	x, _ := NewTensor([]int{1}, Float32, []float32{0.5})
	x.SetRequiresGrad(true)

	y := TanhAutograd(x)
	if err := y.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	th := math.Tanh(0.5)
	want := float32(1 - th*th)
	if g := gradData(t, x)[0]; math.Abs(float64(g-want)) > 1e-6 {
		t.Errorf("expected tanh gradient %f, got %f", want, g)
	}
}

func TestChainRule(t *testing.T) {
	// y = mean((2x)^2), dy/dx = 8x/n
	x, _ := NewTensor([]int{2}, Float32, []float32{1, 3})
	x.SetRequiresGrad(true)

	doubled := ScaleAutograd(x, 2)
	y := MeanAutograd(MulAutograd(doubled, doubled))
	if got := scalarValue(t, y); got != 20 {
		t.Errorf("forward: expected 20, got %f", got)
	}
	if err := y.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	expected := []float32{4, 12}
	for i, g := range gradData(t, x) {
		if g != expected[i] {
			t.Errorf("element %d: expected gradient %f, got %f", i, expected[i], g)
		}
	}
}

func TestGradientAccumulation(t *testing.T) {
	x, _ := NewTensor([]int{1}, Float32, []float32{2.0})
	x.SetRequiresGrad(true)

	for i := 0; i < 2; i++ {
		y := ScaleAutograd(x, 3)
		if err := y.Backward(); err != nil {
			t.Fatalf("Backward failed: %v", err)
		}
	}
	if g := gradData(t, x)[0]; g != 6.0 {
		t.Errorf("expected accumulated gradient 6.0, got %f", g)
	}

	x.ZeroGrad()
	if x.Grad() != nil {
		t.Error("ZeroGrad should drop the gradient")
	}
}

func TestDetachStopsGradient(t *testing.T) {
	x, _ := NewTensor([]int{2}, Float32, []float32{1, 2})
	x.SetRequiresGrad(true)

	hidden := ScaleAutograd(x, 2)
	detached, err := hidden.Detach()
	if err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	detached.SetRequiresGrad(true)

	y := MeanAutograd(detached)
	if err := y.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	if x.Grad() != nil {
		t.Error("gradient leaked through Detach into the original tensor")
	}
	if detached.Grad() == nil {
		t.Error("detached tensor should have received a gradient")
	}
}

func TestBackwardRequiresScalar(t *testing.T) {
	x, _ := NewTensor([]int{2}, Float32, []float32{1, 2})
	x.SetRequiresGrad(true)
	if err := x.Backward(); err == nil {
		t.Error("expected an error for non-scalar Backward")
	}
}

// numericalGradient approximates d f / d x[i] by central differences.
func numericalGradient(t *testing.T, f func() float32, data []float32, i int) float32 {
	t.Helper()
	const eps = 1e-2
	orig := data[i]
	data[i] = orig + eps
	plus := f()
	data[i] = orig - eps
	minus := f()
	data[i] = orig
	return (plus - minus) / (2 * eps)
}

func checkGradients(t *testing.T, name string, param *Tensor, forward func() float32) {
	t.Helper()
	data, err := param.GetFloat32Data()
	if err != nil {
		t.Fatalf("%s data: %v", name, err)
	}
	grads := gradData(t, param)
	for i := range data {
		want := numericalGradient(t, forward, data, i)
		if math.Abs(float64(grads[i]-want)) > 2e-2 {
			t.Errorf("%s[%d]: analytic gradient %f, numerical %f", name, i, grads[i], want)
		}
	}
}

func TestConv1DGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	input, _ := RandomUniform([]int{1, 6, 2}, 1.0, rng)
	weight, _ := RandomUniform([]int{3, 2, 2}, 1.0, rng)
	bias, _ := RandomUniform([]int{2}, 1.0, rng)
	input.SetRequiresGrad(true)
	weight.SetRequiresGrad(true)
	bias.SetRequiresGrad(true)

	loss := MeanAutograd(Conv1DAutograd(input, weight, bias, 1, 1))
	if err := loss.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	forward := func() float32 {
		out, err := Conv1D(input, weight, bias, 1, 1)
		if err != nil {
			t.Fatalf("Conv1D failed: %v", err)
		}
		m, err := Mean(out)
		if err != nil {
			t.Fatalf("Mean failed: %v", err)
		}
		return scalarValue(t, m)
	}
	checkGradients(t, "input", input, forward)
	checkGradients(t, "weight", weight, forward)
	checkGradients(t, "bias", bias, forward)
}

func TestConvTranspose1DGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	input, _ := RandomUniform([]int{1, 4, 2}, 1.0, rng)
	weight, _ := RandomUniform([]int{4, 2, 2}, 1.0, rng)
	input.SetRequiresGrad(true)
	weight.SetRequiresGrad(true)

	loss := MeanAutograd(ConvTranspose1DAutograd(input, weight, nil, 2, 1))
	if err := loss.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	forward := func() float32 {
		out, err := ConvTranspose1D(input, weight, nil, 2, 1)
		if err != nil {
			t.Fatalf("ConvTranspose1D failed: %v", err)
		}
		m, err := Mean(out)
		if err != nil {
			t.Fatalf("Mean failed: %v", err)
		}
		return scalarValue(t, m)
	}
	checkGradients(t, "input", input, forward)
	checkGradients(t, "weight", weight, forward)
}

func TestAvgPool1DGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	input, _ := RandomUniform([]int{1, 8, 2}, 1.0, rng)
	input.SetRequiresGrad(true)

	loss := MeanAutograd(AvgPool1DAutograd(input, 4, 2, 2))
	if err := loss.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	forward := func() float32 {
		out, err := AvgPool1D(input, 4, 2, 2)
		if err != nil {
			t.Fatalf("AvgPool1D failed: %v", err)
		}
		m, err := Mean(out)
		if err != nil {
			t.Fatalf("Mean failed: %v", err)
		}
		return scalarValue(t, m)
	}
	checkGradients(t, "input", input, forward)
}
