package tensor

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
)

func TestCalculateStrides(t *testing.T) {
	tests := []struct {
		shape    []int
		expected []int
	}{
		{[]int{5}, []int{1}},
		{[]int{2, 3}, []int{3, 1}},
		{[]int{2, 3, 4}, []int{12, 4, 1}},
	}
	for _, test := range tests {
		result := calculateStrides(test.shape)
		if !reflect.DeepEqual(result, test.expected) {
			t.Errorf("calculateStrides(%v) = %v, expected %v", test.shape, result, test.expected)
		}
	}
}

func TestNewTensor(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	x, err := NewTensor([]int{2, 3}, Float32, data)
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	if x.NumElems != 6 {
		t.Errorf("expected 6 elements, got %d", x.NumElems)
	}
	if !reflect.DeepEqual(x.Strides, []int{3, 1}) {
		t.Errorf("expected strides [3 1], got %v", x.Strides)
	}

	if _, err := NewTensor([]int{2, 3}, Float32, []float32{1, 2}); err == nil {
		t.Error("expected an error for data size mismatch")
	}
	if _, err := NewTensor([]int{0, 3}, Float32, nil); err == nil {
		t.Error("expected an error for a zero dimension")
	}
}

func TestZerosOnesFull(t *testing.T) {
	z, err := Zeros([]int{3})
	if err != nil {
		t.Fatalf("Zeros failed: %v", err)
	}
	for i, v := range z.Data.([]float32) {
		if v != 0 {
			t.Errorf("Zeros element %d = %f", i, v)
		}
	}

	f, err := Full([]int{2, 2}, 1.5)
	if err != nil {
		t.Fatalf("Full failed: %v", err)
	}
	for i, v := range f.Data.([]float32) {
		if v != 1.5 {
			t.Errorf("Full element %d = %f, expected 1.5", i, v)
		}
	}
}

func TestReshape(t *testing.T) {
	x, _ := NewTensor([]int{2, 6}, Float32, []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11})

	r, err := x.Reshape([]int{2, 3, 2})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if !reflect.DeepEqual(r.Shape, []int{2, 3, 2}) {
		t.Errorf("expected shape [2 3 2], got %v", r.Shape)
	}

	inferred, err := x.Reshape([]int{-1, 4})
	if err != nil {
		t.Fatalf("Reshape with inferred dim failed: %v", err)
	}
	if !reflect.DeepEqual(inferred.Shape, []int{3, 4}) {
		t.Errorf("expected shape [3 4], got %v", inferred.Shape)
	}

	if _, err := x.Reshape([]int{5, 3}); err == nil {
		t.Error("expected an error for incompatible reshape")
	}
}

func TestItemAndAt(t *testing.T) {
	s := FromScalar(2.5)
	v, err := s.Item()
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	if v != 2.5 {
		t.Errorf("expected 2.5, got %f", v)
	}

	x, _ := NewTensor([]int{2, 2}, Float32, []float32{1, 2, 3, 4})
	if _, err := x.Item(); err == nil {
		t.Error("expected an error calling Item on a non-scalar")
	}
	got, err := x.At(1, 0)
	if err != nil {
		t.Fatalf("At failed: %v", err)
	}
	if got != 3 {
		t.Errorf("At(1,0) = %f, expected 3", got)
	}
}

func TestIsFinite(t *testing.T) {
	ok, _ := NewTensor([]int{2}, Float32, []float32{1, -2})
	if !ok.IsFinite() {
		t.Error("finite tensor reported non-finite")
	}

	bad, _ := NewTensor([]int{2}, Float32, []float32{1, float32(math.NaN())})
	if bad.IsFinite() {
		t.Error("NaN tensor reported finite")
	}

	inf, _ := NewTensor([]int{2}, Float32, []float32{1, float32(math.Inf(1))})
	if inf.IsFinite() {
		t.Error("Inf tensor reported finite")
	}
}

func TestHalfRoundTrip(t *testing.T) {
	x, _ := NewTensor([]int{3}, Float32, []float32{0.5, -1.25, 1024})

	h, err := ToHalf(x)
	if err != nil {
		t.Fatalf("ToHalf failed: %v", err)
	}
	if h.DType != Float16 {
		t.Errorf("expected Float16, got %s", h.DType)
	}

	back, err := FromHalf(h)
	if err != nil {
		t.Fatalf("FromHalf failed: %v", err)
	}
	// all three values are exactly representable in half precision
	if !reflect.DeepEqual(back.Data.([]float32), x.Data.([]float32)) {
		t.Errorf("round trip changed data: %v vs %v", back.Data, x.Data)
	}
}

func TestQuantizeHalfLosesPrecision(t *testing.T) {
	x, _ := NewTensor([]int{1}, Float32, []float32{1.0001})
	if err := QuantizeHalf(x); err != nil {
		t.Fatalf("QuantizeHalf failed: %v", err)
	}
	v := x.Data.([]float32)[0]
	if v == 1.0001 {
		t.Error("expected half-precision rounding to change 1.0001")
	}
	if math.Abs(float64(v-1.0)) > 1e-3 {
		t.Errorf("rounded value %f too far from 1.0", v)
	}
}

func TestRandomCreationReproducible(t *testing.T) {
	a, err := RandomUniform([]int{8}, 0.5, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("RandomUniform failed: %v", err)
	}
	b, _ := RandomUniform([]int{8}, 0.5, rand.New(rand.NewSource(3)))
	if !reflect.DeepEqual(a.Data, b.Data) {
		t.Error("same seed should produce identical tensors")
	}
	for _, v := range a.Data.([]float32) {
		if v < -0.5 || v > 0.5 {
			t.Errorf("sample %f outside bound", v)
		}
	}
}
