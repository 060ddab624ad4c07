package tensor

import (
	"fmt"
	"math"
)

func checkCompatibility(t1, t2 *Tensor) error {
	if t1.DType != t2.DType {
		return fmt.Errorf("tensors must have same dtype: %s vs %s", t1.DType, t2.DType)
	}
	return nil
}

func checkShapesCompatible(shape1, shape2 []int) ([]int, error) {
	if len(shape1) == 0 || len(shape2) == 0 {
		return nil, fmt.Errorf("cannot operate on empty tensors")
	}

	if len(shape1) != len(shape2) {
		return nil, fmt.Errorf("tensor shapes must have same number of dimensions: %v vs %v", shape1, shape2)
	}

	for i := range shape1 {
		if shape1[i] != shape2[i] {
			return nil, fmt.Errorf("tensor shapes must match: %v vs %v", shape1, shape2)
		}
	}

	return shape1, nil
}

func requireFloat32(t *Tensor, op string) ([]float32, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("unsupported dtype for %s: %s", op, t.DType)
	}
	return t.Data.([]float32), nil
}

func elementwise2(t1, t2 *Tensor, op string, fn func(a, b float32) float32) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}

	outputShape, err := checkShapesCompatible(t1.Shape, t2.Shape)
	if err != nil {
		return nil, err
	}

	data1, err := requireFloat32(t1, op)
	if err != nil {
		return nil, err
	}
	data2, err := requireFloat32(t2, op)
	if err != nil {
		return nil, err
	}

	result, err := Zeros(outputShape)
	if err != nil {
		return nil, err
	}
	resultData := result.Data.([]float32)
	for i := 0; i < t1.NumElems; i++ {
		resultData[i] = fn(data1[i], data2[i])
	}

	return result, nil
}

func elementwise1(t *Tensor, op string, fn func(a float32) float32) (*Tensor, error) {
	data, err := requireFloat32(t, op)
	if err != nil {
		return nil, err
	}

	result, err := Zeros(t.Shape)
	if err != nil {
		return nil, err
	}
	resultData := result.Data.([]float32)
	for i := 0; i < t.NumElems; i++ {
		resultData[i] = fn(data[i])
	}

	return result, nil
}

func Add(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise2(t1, t2, "Add", func(a, b float32) float32 { return a + b })
}

func Sub(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise2(t1, t2, "Sub", func(a, b float32) float32 { return a - b })
}

func Mul(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise2(t1, t2, "Mul", func(a, b float32) float32 { return a * b })
}

// Scale multiplies every element by a scalar.
func Scale(t *Tensor, s float32) (*Tensor, error) {
	return elementwise1(t, "Scale", func(a float32) float32 { return a * s })
}

func Neg(t *Tensor) (*Tensor, error) {
	return elementwise1(t, "Neg", func(a float32) float32 { return -a })
}

func Abs(t *Tensor) (*Tensor, error) {
	return elementwise1(t, "Abs", func(a float32) float32 {
		if a < 0 {
			return -a
		}
		return a
	})
}

func ReLU(t *Tensor) (*Tensor, error) {
	return elementwise1(t, "ReLU", func(a float32) float32 {
		if a < 0 {
			return 0
		}
		return a
	})
}

func LeakyReLU(t *Tensor, alpha float32) (*Tensor, error) {
	return elementwise1(t, "LeakyReLU", func(a float32) float32 {
		if a < 0 {
			return alpha * a
		}
		return a
	})
}

func Tanh(t *Tensor) (*Tensor, error) {
	return elementwise1(t, "Tanh", func(a float32) float32 {
		return float32(math.Tanh(float64(a)))
	})
}

// Sum reduces all elements to a shape-[1] tensor.
func Sum(t *Tensor) (*Tensor, error) {
	data, err := requireFloat32(t, "Sum")
	if err != nil {
		return nil, err
	}

	sum := float32(0)
	for _, v := range data {
		sum += v
	}
	return NewTensor([]int{1}, Float32, []float32{sum})
}

// Mean reduces all elements to their arithmetic mean as a shape-[1] tensor.
func Mean(t *Tensor) (*Tensor, error) {
	data, err := requireFloat32(t, "Mean")
	if err != nil {
		return nil, err
	}
	if t.NumElems == 0 {
		return nil, fmt.Errorf("cannot take mean of empty tensor")
	}

	sum := float32(0)
	for _, v := range data {
		sum += v
	}
	return NewTensor([]int{1}, Float32, []float32{sum / float32(t.NumElems)})
}
