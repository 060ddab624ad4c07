package models

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-vocoder/layers"
	"github.com/tsawler/go-vocoder/tensor"
)

// GeneratorConfig holds the architecture hyperparameters of the
// waveform generator. The product of UpsampleScales must equal the
// feature hop size so one mel frame expands to exactly hop samples.
type GeneratorConfig struct {
	NumMels        int     `mapstructure:"num_mels" yaml:"num_mels"`
	OutChannels    int     `mapstructure:"out_channels" yaml:"out_channels"`
	Filters        int     `mapstructure:"filters" yaml:"filters"`
	UpsampleScales []int   `mapstructure:"upsample_scales" yaml:"upsample_scales"`
	KernelSize     int     `mapstructure:"kernel_size" yaml:"kernel_size"`
	NonlinearSlope float64 `mapstructure:"nonlinear_slope" yaml:"nonlinear_slope"`
	UseBias        bool    `mapstructure:"use_bias" yaml:"use_bias"`
}

// DefaultGeneratorConfig returns the standard vocoder generator setup
// for a hop size of 256 (8*8*2*2).
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		NumMels:        80,
		OutChannels:    1,
		Filters:        512,
		UpsampleScales: []int{8, 8, 2, 2},
		KernelSize:     7,
		NonlinearSlope: 0.2,
		UseBias:        true,
	}
}

// HopSize returns the total upsampling factor.
func (c GeneratorConfig) HopSize() int {
	hop := 1
	for _, s := range c.UpsampleScales {
		hop *= s
	}
	return hop
}

func (c GeneratorConfig) validate() error {
	if c.NumMels <= 0 {
		return fmt.Errorf("num_mels must be positive, got %d", c.NumMels)
	}
	if c.OutChannels <= 0 {
		return fmt.Errorf("out_channels must be positive, got %d", c.OutChannels)
	}
	if c.Filters <= 0 {
		return fmt.Errorf("filters must be positive, got %d", c.Filters)
	}
	if len(c.UpsampleScales) == 0 {
		return fmt.Errorf("upsample_scales must not be empty")
	}
	for _, s := range c.UpsampleScales {
		if s <= 0 || s%2 != 0 {
			return fmt.Errorf("upsample scales must be positive and even, got %v", c.UpsampleScales)
		}
	}
	if c.KernelSize <= 0 || c.KernelSize%2 == 0 {
		return fmt.Errorf("kernel_size must be positive and odd, got %d", c.KernelSize)
	}
	return nil
}

// Generator maps mel-spectrogram features (B, frames, num_mels) to a
// waveform (B, frames*hop, 1) through a stack of transposed
// convolutions. Channel width halves at every upsampling stage.
type Generator struct {
	config GeneratorConfig
	net    *layers.Sequential
}

// NewGenerator builds a generator with weights drawn from the given
// source, so construction is reproducible per seed.
func NewGenerator(config GeneratorConfig, rng *rand.Rand) (*Generator, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid generator config: %w", err)
	}

	alpha := float32(config.NonlinearSlope)
	pad := (config.KernelSize - 1) / 2

	var modules []layers.Module

	inConv, err := layers.NewConv1D(config.NumMels, config.Filters, config.KernelSize, 1, pad, config.UseBias, rng)
	if err != nil {
		return nil, err
	}
	modules = append(modules, inConv, layers.NewLeakyReLU(alpha))

	channels := config.Filters
	for _, scale := range config.UpsampleScales {
		out := channels / 2
		if out < config.OutChannels {
			out = config.OutChannels
		}
		up, err := layers.NewConvTranspose1D(channels, out, scale*2, scale, scale/2, config.UseBias, rng)
		if err != nil {
			return nil, err
		}
		modules = append(modules, up, layers.NewLeakyReLU(alpha))
		channels = out
	}

	outConv, err := layers.NewConv1D(channels, config.OutChannels, config.KernelSize, 1, pad, config.UseBias, rng)
	if err != nil {
		return nil, err
	}
	modules = append(modules, outConv, layers.NewTanh())

	return &Generator{
		config: config,
		net:    layers.NewSequential(modules...),
	}, nil
}

// Forward synthesizes a waveform from mel features.
func (g *Generator) Forward(mels *tensor.Tensor) (*tensor.Tensor, error) {
	if len(mels.Shape) != 3 {
		return nil, fmt.Errorf("generator expects (B, frames, num_mels) input, got shape %v", mels.Shape)
	}
	if mels.Shape[2] != g.config.NumMels {
		return nil, fmt.Errorf("generator expects %d mel channels, got %d", g.config.NumMels, mels.Shape[2])
	}
	return g.net.Forward(mels)
}

func (g *Generator) Parameters() []*tensor.Tensor {
	return g.net.Parameters()
}

func (g *Generator) Train()           { g.net.Train() }
func (g *Generator) Eval()            { g.net.Eval() }
func (g *Generator) IsTraining() bool { return g.net.IsTraining() }

// SetHalfPrecision rounds layer activations through float16 when
// enabled, emulating a reduced-precision forward pass.
func (g *Generator) SetHalfPrecision(enabled bool) {
	g.net.SetHalfPrecision(enabled)
}

// Config returns the architecture configuration.
func (g *Generator) Config() GeneratorConfig {
	return g.config
}
