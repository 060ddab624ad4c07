package tensor

import (
	"fmt"

	"github.com/x448/float16"
)

// ToHalf converts a Float32 tensor to Float16 storage. Values outside
// the half-precision range saturate; subnormals below 2^-24 flush to
// zero, which is exactly the underflow that loss scaling guards against.
func ToHalf(t *Tensor) (*Tensor, error) {
	data, err := t.GetFloat32Data()
	if err != nil {
		return nil, err
	}

	half := make([]uint16, len(data))
	for i, v := range data {
		half[i] = uint16(float16.Fromfloat32(v))
	}

	shape := make([]int, len(t.Shape))
	copy(shape, t.Shape)
	return NewTensor(shape, Float16, half)
}

// FromHalf converts a Float16 tensor back to Float32.
func FromHalf(t *Tensor) (*Tensor, error) {
	if t.DType != Float16 {
		return nil, fmt.Errorf("tensor dtype is %s, not Float16", t.DType)
	}

	half := t.Data.([]uint16)
	data := make([]float32, len(half))
	for i, v := range half {
		data[i] = float16.Float16(v).Float32()
	}

	shape := make([]int, len(t.Shape))
	copy(shape, t.Shape)
	return NewTensor(shape, Float32, data)
}

// QuantizeHalf rounds every element through half precision in place,
// emulating a reduced-precision forward pass on full-precision storage.
func QuantizeHalf(t *Tensor) error {
	data, err := t.GetFloat32Data()
	if err != nil {
		return err
	}
	for i, v := range data {
		data[i] = float16.Fromfloat32(v).Float32()
	}
	return nil
}
