package tensor

import (
	"fmt"
	"math"
)

// Reshape returns a new tensor sharing the same data with a different shape.
// A single dimension may be -1 and is inferred from the remaining ones.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	newNumElems := 1
	hasNegOne := false
	negOneIdx := -1

	for i, dim := range newShape {
		if dim < 0 {
			if dim != -1 {
				return nil, fmt.Errorf("negative dimension %d at index %d is not allowed (only -1 is allowed)", dim, i)
			}
			if hasNegOne {
				return nil, fmt.Errorf("only one dimension can be -1")
			}
			hasNegOne = true
			negOneIdx = i
		} else if dim == 0 {
			return nil, fmt.Errorf("dimension %d cannot be 0", i)
		} else {
			newNumElems *= dim
		}
	}

	resolved := make([]int, len(newShape))
	copy(resolved, newShape)
	if hasNegOne {
		if t.NumElems%newNumElems != 0 {
			return nil, fmt.Errorf("cannot reshape tensor of size %d into shape with -1: size must be divisible by %d", t.NumElems, newNumElems)
		}
		resolved[negOneIdx] = t.NumElems / newNumElems
		newNumElems *= resolved[negOneIdx]
	}

	if newNumElems != t.NumElems {
		return nil, fmt.Errorf("cannot reshape tensor of size %d into shape %v (size %d)", t.NumElems, newShape, newNumElems)
	}

	return &Tensor{
		Shape:        resolved,
		Strides:      calculateStrides(resolved),
		DType:        t.DType,
		Data:         t.Data, // share the underlying data
		NumElems:     t.NumElems,
		requiresGrad: t.requiresGrad,
		grad:         nil, // don't copy gradient
		creator:      nil, // don't copy autograd graph
	}, nil
}

func (t *Tensor) Clone() (*Tensor, error) {
	clone := &Tensor{
		Shape:        make([]int, len(t.Shape)),
		Strides:      make([]int, len(t.Strides)),
		DType:        t.DType,
		NumElems:     t.NumElems,
		requiresGrad: t.requiresGrad,
	}

	copy(clone.Shape, t.Shape)
	copy(clone.Strides, t.Strides)

	switch t.DType {
	case Float32:
		if t.Data == nil {
			return nil, fmt.Errorf("tensor has nil data")
		}
		data := t.Data.([]float32)
		cloneData := make([]float32, len(data))
		copy(cloneData, data)
		clone.Data = cloneData
	case Float16:
		if t.Data == nil {
			return nil, fmt.Errorf("tensor has nil data")
		}
		data := t.Data.([]uint16)
		cloneData := make([]uint16, len(data))
		copy(cloneData, data)
		clone.Data = cloneData
	default:
		return nil, fmt.Errorf("unsupported dtype for Clone: %s", t.DType)
	}

	return clone, nil
}

// Detach returns a copy of the tensor severed from the autograd graph.
// Gradients flowing into the detached tensor never reach the original's
// creators, which is how the discriminator step keeps generator weights
// out of its update.
func (t *Tensor) Detach() (*Tensor, error) {
	detached, err := t.Clone()
	if err != nil {
		return nil, err
	}
	detached.requiresGrad = false
	detached.creator = nil
	detached.grad = nil
	return detached, nil
}

func (t *Tensor) GetFloat32Data() ([]float32, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("tensor dtype is %s, not Float32", t.DType)
	}
	return t.Data.([]float32), nil
}

// Item returns the single value of a scalar tensor.
func (t *Tensor) Item() (float32, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("Item requires a tensor with exactly one element, got %d", t.NumElems)
	}
	data, err := t.GetFloat32Data()
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (t *Tensor) At(indices ...int) (float32, error) {
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("expected %d indices, got %d", len(t.Shape), len(indices))
	}

	idx := 0
	for i, index := range indices {
		if index < 0 || index >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of bounds for dimension %d (size %d)", index, i, t.Shape[i])
		}
		idx += index * t.Strides[i]
	}

	data, err := t.GetFloat32Data()
	if err != nil {
		return 0, err
	}
	return data[idx], nil
}

func (t *Tensor) Size() []int {
	return t.Shape
}

func (t *Tensor) Numel() int {
	return t.NumElems
}

func (t *Tensor) Dim() int {
	return len(t.Shape)
}

// Equal reports whether two tensors have identical shape and data.
func (t *Tensor) Equal(other *Tensor) (bool, error) {
	if t.DType != other.DType {
		return false, nil
	}
	if !shapesEqual(t.Shape, other.Shape) {
		return false, nil
	}

	switch t.DType {
	case Float32:
		a := t.Data.([]float32)
		b := other.Data.([]float32)
		for i := range a {
			if a[i] != b[i] {
				return false, nil
			}
		}
	case Float16:
		a := t.Data.([]uint16)
		b := other.Data.([]uint16)
		for i := range a {
			if a[i] != b[i] {
				return false, nil
			}
		}
	default:
		return false, fmt.Errorf("unsupported dtype for Equal: %s", t.DType)
	}

	return true, nil
}

// IsFinite reports whether every element is finite (no NaN or Inf).
func (t *Tensor) IsFinite() bool {
	data, err := t.GetFloat32Data()
	if err != nil {
		return false
	}
	for _, v := range data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
