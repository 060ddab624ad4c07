package models

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-vocoder/layers"
	"github.com/tsawler/go-vocoder/tensor"
)

// DiscriminatorConfig holds the architecture hyperparameters of the
// multi-scale discriminator ensemble.
type DiscriminatorConfig struct {
	Scales           int     `mapstructure:"scales" yaml:"scales"`
	DownsampleScales []int   `mapstructure:"downsample_scales" yaml:"downsample_scales"`
	InKernelSize     int     `mapstructure:"in_kernel_size" yaml:"in_kernel_size"`
	OutKernelSize    int     `mapstructure:"out_kernel_size" yaml:"out_kernel_size"`
	Filters          int     `mapstructure:"filters" yaml:"filters"`
	MaxFilters       int     `mapstructure:"max_filters" yaml:"max_filters"`
	NonlinearSlope   float64 `mapstructure:"nonlinear_slope" yaml:"nonlinear_slope"`
	PoolKernel       int     `mapstructure:"pool_kernel" yaml:"pool_kernel"`
	PoolStride       int     `mapstructure:"pool_stride" yaml:"pool_stride"`
	UseBias          bool    `mapstructure:"use_bias" yaml:"use_bias"`
}

// DefaultDiscriminatorConfig returns the standard three-scale setup.
func DefaultDiscriminatorConfig() DiscriminatorConfig {
	return DiscriminatorConfig{
		Scales:           3,
		DownsampleScales: []int{4, 4, 4, 4},
		InKernelSize:     15,
		OutKernelSize:    3,
		Filters:          16,
		MaxFilters:       1024,
		NonlinearSlope:   0.2,
		PoolKernel:       4,
		PoolStride:       2,
		UseBias:          true,
	}
}

func (c DiscriminatorConfig) validate() error {
	if c.Scales <= 0 {
		return fmt.Errorf("scales must be positive, got %d", c.Scales)
	}
	if len(c.DownsampleScales) == 0 {
		return fmt.Errorf("downsample_scales must not be empty")
	}
	for _, s := range c.DownsampleScales {
		if s <= 0 {
			return fmt.Errorf("downsample scales must be positive, got %v", c.DownsampleScales)
		}
	}
	if c.Filters <= 0 || c.MaxFilters < c.Filters {
		return fmt.Errorf("filters must be positive and not exceed max_filters (%d, %d)", c.Filters, c.MaxFilters)
	}
	if c.InKernelSize <= 0 || c.InKernelSize%2 == 0 || c.OutKernelSize <= 0 || c.OutKernelSize%2 == 0 {
		return fmt.Errorf("kernel sizes must be positive and odd (%d, %d)", c.InKernelSize, c.OutKernelSize)
	}
	if c.PoolKernel <= 0 || c.PoolStride <= 0 {
		return fmt.Errorf("pool kernel and stride must be positive (%d, %d)", c.PoolKernel, c.PoolStride)
	}
	return nil
}

// scaleDiscriminator is one member of the ensemble: a stack of strided
// convolutions ending in a single-channel decision map. Forward returns
// every block's post-activation output plus the final decision, which
// the feature-matching loss consumes layer by layer.
type scaleDiscriminator struct {
	convs       []*layers.Conv1D
	activations []*layers.LeakyReLU
	final       *layers.Conv1D
	training    bool
}

func newScaleDiscriminator(config DiscriminatorConfig, rng *rand.Rand) (*scaleDiscriminator, error) {
	alpha := float32(config.NonlinearSlope)

	sd := &scaleDiscriminator{training: true}

	inPad := (config.InKernelSize - 1) / 2
	in, err := layers.NewConv1D(1, config.Filters, config.InKernelSize, 1, inPad, config.UseBias, rng)
	if err != nil {
		return nil, err
	}
	sd.convs = append(sd.convs, in)
	sd.activations = append(sd.activations, layers.NewLeakyReLU(alpha))

	channels := config.Filters
	for _, ds := range config.DownsampleScales {
		out := channels * 4
		if out > config.MaxFilters {
			out = config.MaxFilters
		}
		conv, err := layers.NewConv1D(channels, out, 2*ds+1, ds, ds, config.UseBias, rng)
		if err != nil {
			return nil, err
		}
		sd.convs = append(sd.convs, conv)
		sd.activations = append(sd.activations, layers.NewLeakyReLU(alpha))
		channels = out
	}

	outPad := (config.OutKernelSize - 1) / 2
	final, err := layers.NewConv1D(channels, 1, config.OutKernelSize, 1, outPad, config.UseBias, rng)
	if err != nil {
		return nil, err
	}
	sd.final = final

	return sd, nil
}

func (sd *scaleDiscriminator) forward(input *tensor.Tensor) ([]*tensor.Tensor, error) {
	outputs := make([]*tensor.Tensor, 0, len(sd.convs)+1)
	x := input
	for i, conv := range sd.convs {
		var err error
		x, err = conv.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("discriminator block %d failed: %w", i, err)
		}
		x, err = sd.activations[i].Forward(x)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, x)
	}

	decision, err := sd.final.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("discriminator decision layer failed: %w", err)
	}
	outputs = append(outputs, decision)

	return outputs, nil
}

func (sd *scaleDiscriminator) parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, conv := range sd.convs {
		params = append(params, conv.Parameters()...)
	}
	params = append(params, sd.final.Parameters()...)
	return params
}

func (sd *scaleDiscriminator) setHalfPrecision(enabled bool) {
	for _, conv := range sd.convs {
		conv.SetHalfPrecision(enabled)
	}
	sd.final.SetHalfPrecision(enabled)
}

// MultiScaleDiscriminator applies an independent discriminator to the
// waveform at each temporal resolution, halving the sample rate with
// average pooling between scales.
type MultiScaleDiscriminator struct {
	config   DiscriminatorConfig
	scales   []*scaleDiscriminator
	pool     *layers.AvgPool1D
	training bool
}

func NewMultiScaleDiscriminator(config DiscriminatorConfig, rng *rand.Rand) (*MultiScaleDiscriminator, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid discriminator config: %w", err)
	}

	d := &MultiScaleDiscriminator{
		config:   config,
		pool:     layers.NewAvgPool1D(config.PoolKernel, config.PoolStride, config.PoolKernel/2),
		training: true,
	}

	for i := 0; i < config.Scales; i++ {
		sd, err := newScaleDiscriminator(config, rng)
		if err != nil {
			return nil, fmt.Errorf("failed to build discriminator scale %d: %w", i, err)
		}
		d.scales = append(d.scales, sd)
	}

	return d, nil
}

// Forward runs every scale on progressively downsampled copies of the
// waveform. The result has one slice per scale; each slice holds the
// intermediate activations followed by the scalar decision map.
func (d *MultiScaleDiscriminator) Forward(wave *tensor.Tensor) ([][]*tensor.Tensor, error) {
	if len(wave.Shape) != 3 || wave.Shape[2] != 1 {
		return nil, fmt.Errorf("discriminator expects (B, T, 1) input, got shape %v", wave.Shape)
	}

	results := make([][]*tensor.Tensor, 0, len(d.scales))
	x := wave
	for i, sd := range d.scales {
		outputs, err := sd.forward(x)
		if err != nil {
			return nil, fmt.Errorf("discriminator scale %d failed: %w", i, err)
		}
		results = append(results, outputs)

		if i != len(d.scales)-1 {
			x, err = d.pool.Forward(x)
			if err != nil {
				return nil, fmt.Errorf("downsample pooling after scale %d failed: %w", i, err)
			}
		}
	}

	return results, nil
}

func (d *MultiScaleDiscriminator) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, sd := range d.scales {
		params = append(params, sd.parameters()...)
	}
	return params
}

func (d *MultiScaleDiscriminator) Train() {
	d.training = true
	for _, sd := range d.scales {
		sd.training = true
	}
}

func (d *MultiScaleDiscriminator) Eval() {
	d.training = false
	for _, sd := range d.scales {
		sd.training = false
	}
}

func (d *MultiScaleDiscriminator) IsTraining() bool { return d.training }

func (d *MultiScaleDiscriminator) SetHalfPrecision(enabled bool) {
	for _, sd := range d.scales {
		sd.setHalfPrecision(enabled)
	}
}

// Config returns the architecture configuration.
func (d *MultiScaleDiscriminator) Config() DiscriminatorConfig {
	return d.config
}
