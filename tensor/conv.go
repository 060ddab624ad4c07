package tensor

import (
	"fmt"
)

// Conv1D computes a 1-D convolution over a (B, T, Cin) input with a
// (K, Cin, Cout) weight and optional (Cout) bias, producing
// (B, Tout, Cout) with Tout = (T + 2*pad - K)/stride + 1.
func Conv1D(input, weight, bias *Tensor, stride, pad int) (*Tensor, error) {
	if len(input.Shape) != 3 {
		return nil, fmt.Errorf("Conv1D input must be 3-dimensional (B, T, C), got %v", input.Shape)
	}
	if len(weight.Shape) != 3 {
		return nil, fmt.Errorf("Conv1D weight must be 3-dimensional (K, Cin, Cout), got %v", weight.Shape)
	}
	if stride <= 0 {
		return nil, fmt.Errorf("Conv1D stride must be positive, got %d", stride)
	}

	batch, tIn, cIn := input.Shape[0], input.Shape[1], input.Shape[2]
	kernel, wcIn, cOut := weight.Shape[0], weight.Shape[1], weight.Shape[2]
	if cIn != wcIn {
		return nil, fmt.Errorf("Conv1D channel mismatch: input has %d, weight expects %d", cIn, wcIn)
	}
	if bias != nil && (len(bias.Shape) != 1 || bias.Shape[0] != cOut) {
		return nil, fmt.Errorf("Conv1D bias must have shape [%d], got %v", cOut, bias.Shape)
	}

	tOut := (tIn+2*pad-kernel)/stride + 1
	if tOut <= 0 {
		return nil, fmt.Errorf("Conv1D output length %d is not positive (T=%d, K=%d, stride=%d, pad=%d)",
			tOut, tIn, kernel, stride, pad)
	}

	x, err := requireFloat32(input, "Conv1D")
	if err != nil {
		return nil, err
	}
	w, err := requireFloat32(weight, "Conv1D")
	if err != nil {
		return nil, err
	}
	var b []float32
	if bias != nil {
		if b, err = requireFloat32(bias, "Conv1D"); err != nil {
			return nil, err
		}
	}

	result, err := Zeros([]int{batch, tOut, cOut})
	if err != nil {
		return nil, err
	}
	out := result.Data.([]float32)

	for bi := 0; bi < batch; bi++ {
		for to := 0; to < tOut; to++ {
			base := (bi*tOut + to) * cOut
			if b != nil {
				copy(out[base:base+cOut], b)
			}
			for k := 0; k < kernel; k++ {
				ti := to*stride + k - pad
				if ti < 0 || ti >= tIn {
					continue
				}
				xBase := (bi*tIn + ti) * cIn
				wBase := k * cIn * cOut
				for ci := 0; ci < cIn; ci++ {
					xv := x[xBase+ci]
					if xv == 0 {
						continue
					}
					wRow := wBase + ci*cOut
					for co := 0; co < cOut; co++ {
						out[base+co] += xv * w[wRow+co]
					}
				}
			}
		}
	}

	return result, nil
}

// conv1DBackward computes input, weight and bias gradients for Conv1D.
func conv1DBackward(input, weight *Tensor, hasBias bool, stride, pad int, gradOut *Tensor) (*Tensor, *Tensor, *Tensor) {
	batch, tIn, cIn := input.Shape[0], input.Shape[1], input.Shape[2]
	kernel, _, cOut := weight.Shape[0], weight.Shape[1], weight.Shape[2]
	tOut := gradOut.Shape[1]

	x := input.Data.([]float32)
	w := weight.Data.([]float32)
	g := gradOut.Data.([]float32)

	gradX, _ := Zeros(input.Shape)
	gradW, _ := Zeros(weight.Shape)
	gx := gradX.Data.([]float32)
	gw := gradW.Data.([]float32)

	var gradB *Tensor
	var gb []float32
	if hasBias {
		gradB, _ = Zeros([]int{cOut})
		gb = gradB.Data.([]float32)
	}

	for bi := 0; bi < batch; bi++ {
		for to := 0; to < tOut; to++ {
			gBase := (bi*tOut + to) * cOut
			if gb != nil {
				for co := 0; co < cOut; co++ {
					gb[co] += g[gBase+co]
				}
			}
			for k := 0; k < kernel; k++ {
				ti := to*stride + k - pad
				if ti < 0 || ti >= tIn {
					continue
				}
				xBase := (bi*tIn + ti) * cIn
				wBase := k * cIn * cOut
				for ci := 0; ci < cIn; ci++ {
					wRow := wBase + ci*cOut
					var accX float32
					for co := 0; co < cOut; co++ {
						gv := g[gBase+co]
						accX += gv * w[wRow+co]
						gw[wRow+co] += gv * x[xBase+ci]
					}
					gx[xBase+ci] += accX
				}
			}
		}
	}

	return gradX, gradW, gradB
}

// ConvTranspose1D computes a transposed (fractionally strided) 1-D
// convolution, the upsampling counterpart of Conv1D. Output length is
// (T-1)*stride + K - 2*pad.
func ConvTranspose1D(input, weight, bias *Tensor, stride, pad int) (*Tensor, error) {
	if len(input.Shape) != 3 {
		return nil, fmt.Errorf("ConvTranspose1D input must be 3-dimensional (B, T, C), got %v", input.Shape)
	}
	if len(weight.Shape) != 3 {
		return nil, fmt.Errorf("ConvTranspose1D weight must be 3-dimensional (K, Cin, Cout), got %v", weight.Shape)
	}
	if stride <= 0 {
		return nil, fmt.Errorf("ConvTranspose1D stride must be positive, got %d", stride)
	}

	batch, tIn, cIn := input.Shape[0], input.Shape[1], input.Shape[2]
	kernel, wcIn, cOut := weight.Shape[0], weight.Shape[1], weight.Shape[2]
	if cIn != wcIn {
		return nil, fmt.Errorf("ConvTranspose1D channel mismatch: input has %d, weight expects %d", cIn, wcIn)
	}

	tOut := (tIn-1)*stride + kernel - 2*pad
	if tOut <= 0 {
		return nil, fmt.Errorf("ConvTranspose1D output length %d is not positive", tOut)
	}

	x, err := requireFloat32(input, "ConvTranspose1D")
	if err != nil {
		return nil, err
	}
	w, err := requireFloat32(weight, "ConvTranspose1D")
	if err != nil {
		return nil, err
	}
	var b []float32
	if bias != nil {
		if b, err = requireFloat32(bias, "ConvTranspose1D"); err != nil {
			return nil, err
		}
	}

	result, err := Zeros([]int{batch, tOut, cOut})
	if err != nil {
		return nil, err
	}
	out := result.Data.([]float32)

	if b != nil {
		for bi := 0; bi < batch; bi++ {
			for to := 0; to < tOut; to++ {
				copy(out[(bi*tOut+to)*cOut:(bi*tOut+to)*cOut+cOut], b)
			}
		}
	}

	for bi := 0; bi < batch; bi++ {
		for ti := 0; ti < tIn; ti++ {
			xBase := (bi*tIn + ti) * cIn
			for k := 0; k < kernel; k++ {
				to := ti*stride + k - pad
				if to < 0 || to >= tOut {
					continue
				}
				oBase := (bi*tOut + to) * cOut
				wBase := k * cIn * cOut
				for ci := 0; ci < cIn; ci++ {
					xv := x[xBase+ci]
					if xv == 0 {
						continue
					}
					wRow := wBase + ci*cOut
					for co := 0; co < cOut; co++ {
						out[oBase+co] += xv * w[wRow+co]
					}
				}
			}
		}
	}

	return result, nil
}

func convTranspose1DBackward(input, weight *Tensor, hasBias bool, stride, pad int, gradOut *Tensor) (*Tensor, *Tensor, *Tensor) {
	batch, tIn, cIn := input.Shape[0], input.Shape[1], input.Shape[2]
	kernel, _, cOut := weight.Shape[0], weight.Shape[1], weight.Shape[2]
	tOut := gradOut.Shape[1]

	x := input.Data.([]float32)
	w := weight.Data.([]float32)
	g := gradOut.Data.([]float32)

	gradX, _ := Zeros(input.Shape)
	gradW, _ := Zeros(weight.Shape)
	gx := gradX.Data.([]float32)
	gw := gradW.Data.([]float32)

	var gradB *Tensor
	var gb []float32
	if hasBias {
		gradB, _ = Zeros([]int{cOut})
		gb = gradB.Data.([]float32)
		for bi := 0; bi < batch; bi++ {
			for to := 0; to < tOut; to++ {
				gBase := (bi*tOut + to) * cOut
				for co := 0; co < cOut; co++ {
					gb[co] += g[gBase+co]
				}
			}
		}
	}

	for bi := 0; bi < batch; bi++ {
		for ti := 0; ti < tIn; ti++ {
			xBase := (bi*tIn + ti) * cIn
			for k := 0; k < kernel; k++ {
				to := ti*stride + k - pad
				if to < 0 || to >= tOut {
					continue
				}
				gBase := (bi*tOut + to) * cOut
				wBase := k * cIn * cOut
				for ci := 0; ci < cIn; ci++ {
					wRow := wBase + ci*cOut
					var accX float32
					for co := 0; co < cOut; co++ {
						gv := g[gBase+co]
						accX += gv * w[wRow+co]
						gw[wRow+co] += gv * x[xBase+ci]
					}
					gx[xBase+ci] += accX
				}
			}
		}
	}

	return gradX, gradW, gradB
}

// AvgPool1D averages over windows of the time dimension of a (B, T, C)
// tensor. Padded positions count toward the divisor, matching
// average pooling with zero padding.
func AvgPool1D(input *Tensor, kernel, stride, pad int) (*Tensor, error) {
	if len(input.Shape) != 3 {
		return nil, fmt.Errorf("AvgPool1D input must be 3-dimensional (B, T, C), got %v", input.Shape)
	}
	if kernel <= 0 || stride <= 0 {
		return nil, fmt.Errorf("AvgPool1D kernel and stride must be positive")
	}

	batch, tIn, c := input.Shape[0], input.Shape[1], input.Shape[2]
	tOut := (tIn+2*pad-kernel)/stride + 1
	if tOut <= 0 {
		return nil, fmt.Errorf("AvgPool1D output length %d is not positive", tOut)
	}

	x, err := requireFloat32(input, "AvgPool1D")
	if err != nil {
		return nil, err
	}

	result, err := Zeros([]int{batch, tOut, c})
	if err != nil {
		return nil, err
	}
	out := result.Data.([]float32)
	inv := 1.0 / float32(kernel)

	for bi := 0; bi < batch; bi++ {
		for to := 0; to < tOut; to++ {
			oBase := (bi*tOut + to) * c
			for k := 0; k < kernel; k++ {
				ti := to*stride + k - pad
				if ti < 0 || ti >= tIn {
					continue
				}
				xBase := (bi*tIn + ti) * c
				for ci := 0; ci < c; ci++ {
					out[oBase+ci] += x[xBase+ci] * inv
				}
			}
		}
	}

	return result, nil
}

func avgPool1DBackward(input *Tensor, kernel, stride, pad int, gradOut *Tensor) *Tensor {
	batch, tIn, c := input.Shape[0], input.Shape[1], input.Shape[2]
	tOut := gradOut.Shape[1]

	g := gradOut.Data.([]float32)
	gradX, _ := Zeros(input.Shape)
	gx := gradX.Data.([]float32)
	inv := 1.0 / float32(kernel)

	for bi := 0; bi < batch; bi++ {
		for to := 0; to < tOut; to++ {
			gBase := (bi*tOut + to) * c
			for k := 0; k < kernel; k++ {
				ti := to*stride + k - pad
				if ti < 0 || ti >= tIn {
					continue
				}
				xBase := (bi*tIn + ti) * c
				for ci := 0; ci < c; ci++ {
					gx[xBase+ci] += g[gBase+ci] * inv
				}
			}
		}
	}

	return gradX
}
