package layers

import (
	"github.com/tsawler/go-vocoder/tensor"
)

// LeakyReLU applies leaky ReLU with a fixed negative slope
type LeakyReLU struct {
	alpha    float32
	training bool
}

func NewLeakyReLU(alpha float32) *LeakyReLU {
	return &LeakyReLU{alpha: alpha, training: true}
}

func (l *LeakyReLU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.LeakyReLUAutograd(input, l.alpha), nil
}

func (l *LeakyReLU) Parameters() []*tensor.Tensor { return nil }
func (l *LeakyReLU) Train()                       { l.training = true }
func (l *LeakyReLU) Eval()                        { l.training = false }
func (l *LeakyReLU) IsTraining() bool             { return l.training }

// Tanh applies the tanh activation
type Tanh struct {
	training bool
}

func NewTanh() *Tanh {
	return &Tanh{training: true}
}

func (t *Tanh) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.TanhAutograd(input), nil
}

func (t *Tanh) Parameters() []*tensor.Tensor { return nil }
func (t *Tanh) Train()                       { t.training = true }
func (t *Tanh) Eval()                        { t.training = false }
func (t *Tanh) IsTraining() bool             { return t.training }

// AvgPool1D downsamples the time dimension by averaging
type AvgPool1D struct {
	kernel   int
	stride   int
	pad      int
	training bool
}

func NewAvgPool1D(kernel, stride, pad int) *AvgPool1D {
	return &AvgPool1D{kernel: kernel, stride: stride, pad: pad, training: true}
}

func (p *AvgPool1D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.AvgPool1DAutograd(input, p.kernel, p.stride, p.pad), nil
}

func (p *AvgPool1D) Parameters() []*tensor.Tensor { return nil }
func (p *AvgPool1D) Train()                       { p.training = true }
func (p *AvgPool1D) Eval()                        { p.training = false }
func (p *AvgPool1D) IsTraining() bool             { return p.training }
