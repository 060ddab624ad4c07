package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tsawler/go-vocoder/models"
)

// Version is recorded into saved checkpoints and config snapshots.
const Version = "0.1.0"

// Formats accepted by the dump-directory dataset.
const (
	FormatWAV  = "wav"
	FormatFLAC = "flac"
)

// OptimizerParams carries the Adam hyperparameters for one network.
type OptimizerParams struct {
	LearningRate float64 `mapstructure:"lr" yaml:"lr"`
	Beta1        float64 `mapstructure:"beta_1" yaml:"beta_1"`
	Beta2        float64 `mapstructure:"beta_2" yaml:"beta_2"`
	Epsilon      float64 `mapstructure:"epsilon" yaml:"epsilon"`
}

// MelParams carries the feature-extraction settings used when mel
// spectrograms are computed on the fly from raw audio.
type MelParams struct {
	FFTSize int     `mapstructure:"fft_size" yaml:"fft_size"`
	WinSize int     `mapstructure:"win_size" yaml:"win_size"`
	NumMels int     `mapstructure:"num_mels" yaml:"num_mels"`
	FMin    float64 `mapstructure:"fmin" yaml:"fmin"`
	FMax    float64 `mapstructure:"fmax" yaml:"fmax"`
}

// Config is the full training configuration, loaded once at startup
// and treated as immutable afterwards. Save appends bookkeeping fields
// without touching the in-memory hyperparameters.
type Config struct {
	SamplingRate int    `mapstructure:"sampling_rate" yaml:"sampling_rate"`
	HopSize      int    `mapstructure:"hop_size" yaml:"hop_size"`
	Format       string `mapstructure:"format" yaml:"format"`

	BatchSize          int  `mapstructure:"batch_size" yaml:"batch_size"`
	BatchMaxSteps      int  `mapstructure:"batch_max_steps" yaml:"batch_max_steps"`
	RemoveShortSamples bool `mapstructure:"remove_short_samples" yaml:"remove_short_samples"`
	AllowCache         bool `mapstructure:"allow_cache" yaml:"allow_cache"`

	LambdaFeatMatch float64 `mapstructure:"lambda_feat_match" yaml:"lambda_feat_match"`

	TrainMaxSteps              int `mapstructure:"train_max_steps" yaml:"train_max_steps"`
	LogIntervalSteps           int `mapstructure:"log_interval_steps" yaml:"log_interval_steps"`
	SaveIntervalSteps          int `mapstructure:"save_interval_steps" yaml:"save_interval_steps"`
	NumSaveIntermediateResults int `mapstructure:"num_save_intermediate_results" yaml:"num_save_intermediate_results"`
	MaxCheckpointsToKeep       int `mapstructure:"max_checkpoints_to_keep" yaml:"max_checkpoints_to_keep"`

	Seed int64 `mapstructure:"seed" yaml:"seed"`

	Generator     models.GeneratorConfig     `mapstructure:"generator_params" yaml:"generator_params"`
	Discriminator models.DiscriminatorConfig `mapstructure:"discriminator_params" yaml:"discriminator_params"`

	GeneratorOptimizer     OptimizerParams `mapstructure:"generator_optimizer_params" yaml:"generator_optimizer_params"`
	DiscriminatorOptimizer OptimizerParams `mapstructure:"discriminator_optimizer_params" yaml:"discriminator_optimizer_params"`

	Mel MelParams `mapstructure:"mel_params" yaml:"mel_params"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sampling_rate", 22050)
	v.SetDefault("hop_size", 256)
	v.SetDefault("format", FormatWAV)
	v.SetDefault("batch_size", 16)
	v.SetDefault("batch_max_steps", 25600)
	v.SetDefault("remove_short_samples", true)
	v.SetDefault("allow_cache", true)
	v.SetDefault("lambda_feat_match", 10.0)
	v.SetDefault("train_max_steps", 4000000)
	v.SetDefault("log_interval_steps", 200)
	v.SetDefault("save_interval_steps", 20000)
	v.SetDefault("num_save_intermediate_results", 4)
	v.SetDefault("max_checkpoints_to_keep", 20)
	v.SetDefault("seed", 42)

	gen := models.DefaultGeneratorConfig()
	v.SetDefault("generator_params.num_mels", gen.NumMels)
	v.SetDefault("generator_params.out_channels", gen.OutChannels)
	v.SetDefault("generator_params.filters", gen.Filters)
	v.SetDefault("generator_params.upsample_scales", gen.UpsampleScales)
	v.SetDefault("generator_params.kernel_size", gen.KernelSize)
	v.SetDefault("generator_params.nonlinear_slope", gen.NonlinearSlope)
	v.SetDefault("generator_params.use_bias", gen.UseBias)

	dis := models.DefaultDiscriminatorConfig()
	v.SetDefault("discriminator_params.scales", dis.Scales)
	v.SetDefault("discriminator_params.downsample_scales", dis.DownsampleScales)
	v.SetDefault("discriminator_params.in_kernel_size", dis.InKernelSize)
	v.SetDefault("discriminator_params.out_kernel_size", dis.OutKernelSize)
	v.SetDefault("discriminator_params.filters", dis.Filters)
	v.SetDefault("discriminator_params.max_filters", dis.MaxFilters)
	v.SetDefault("discriminator_params.nonlinear_slope", dis.NonlinearSlope)
	v.SetDefault("discriminator_params.pool_kernel", dis.PoolKernel)
	v.SetDefault("discriminator_params.pool_stride", dis.PoolStride)
	v.SetDefault("discriminator_params.use_bias", dis.UseBias)

	v.SetDefault("generator_optimizer_params.lr", 1e-4)
	v.SetDefault("generator_optimizer_params.beta_1", 0.9)
	v.SetDefault("generator_optimizer_params.beta_2", 0.999)
	v.SetDefault("generator_optimizer_params.epsilon", 1e-8)
	v.SetDefault("discriminator_optimizer_params.lr", 1e-4)
	v.SetDefault("discriminator_optimizer_params.beta_1", 0.9)
	v.SetDefault("discriminator_optimizer_params.beta_2", 0.999)
	v.SetDefault("discriminator_optimizer_params.epsilon", 1e-8)

	v.SetDefault("mel_params.fft_size", 1024)
	v.SetDefault("mel_params.win_size", 1024)
	v.SetDefault("mel_params.num_mels", gen.NumMels)
	v.SetDefault("mel_params.fmin", 80.0)
	v.SetDefault("mel_params.fmax", 7600.0)
}

// Load reads a YAML configuration file, fills unset fields with
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate fails fast on any missing or contradictory hyperparameter,
// so training never fails deep inside a step over a bad setting.
func (c *Config) Validate() error {
	if c.SamplingRate <= 0 {
		return fmt.Errorf("sampling_rate must be positive, got %d", c.SamplingRate)
	}
	if c.HopSize <= 0 {
		return fmt.Errorf("hop_size must be positive, got %d", c.HopSize)
	}
	if c.Format != FormatWAV && c.Format != FormatFLAC {
		return fmt.Errorf("unsupported format %q: only wav and flac are supported", c.Format)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.BatchMaxSteps <= 0 || c.BatchMaxSteps%c.HopSize != 0 {
		return fmt.Errorf("batch_max_steps must be a positive multiple of hop_size, got %d (hop %d)", c.BatchMaxSteps, c.HopSize)
	}
	if c.LambdaFeatMatch < 0 {
		return fmt.Errorf("lambda_feat_match must not be negative, got %v", c.LambdaFeatMatch)
	}
	if c.TrainMaxSteps <= 0 {
		return fmt.Errorf("train_max_steps must be positive, got %d", c.TrainMaxSteps)
	}
	if c.LogIntervalSteps <= 0 {
		return fmt.Errorf("log_interval_steps must be positive, got %d", c.LogIntervalSteps)
	}
	if c.SaveIntervalSteps < 0 {
		return fmt.Errorf("save_interval_steps must not be negative, got %d", c.SaveIntervalSteps)
	}
	if c.NumSaveIntermediateResults < 0 {
		return fmt.Errorf("num_save_intermediate_results must not be negative, got %d", c.NumSaveIntermediateResults)
	}
	if c.MaxCheckpointsToKeep <= 0 {
		return fmt.Errorf("max_checkpoints_to_keep must be positive, got %d", c.MaxCheckpointsToKeep)
	}
	if c.Generator.HopSize() != c.HopSize {
		return fmt.Errorf("generator upsample scales %v produce hop %d, config hop_size is %d",
			c.Generator.UpsampleScales, c.Generator.HopSize(), c.HopSize)
	}
	if c.Mel.NumMels != c.Generator.NumMels {
		return fmt.Errorf("mel_params.num_mels (%d) must match generator_params.num_mels (%d)", c.Mel.NumMels, c.Generator.NumMels)
	}
	if c.GeneratorOptimizer.LearningRate <= 0 || c.DiscriminatorOptimizer.LearningRate <= 0 {
		return fmt.Errorf("optimizer learning rates must be positive, got %v and %v",
			c.GeneratorOptimizer.LearningRate, c.DiscriminatorOptimizer.LearningRate)
	}
	return nil
}

// snapshot is the on-disk form of a saved config, with bookkeeping
// fields appended.
type snapshot struct {
	Config  `yaml:",inline"`
	Version string    `yaml:"version"`
	SavedAt time.Time `yaml:"saved_at"`
}

// Save writes the resolved configuration to outdir/config.yml with the
// tool version recorded, so a run's settings survive next to its
// checkpoints.
func (c *Config) Save(outdir string) error {
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := yaml.Marshal(snapshot{
		Config:  *c,
		Version: Version,
		SavedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(outdir, "config.yml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// MelLengthThreshold returns the minimum mel frame count an example
// must have to be usable for training, or 0 when short-sample removal
// is disabled.
func (c *Config) MelLengthThreshold() int {
	if !c.RemoveShortSamples {
		return 0
	}
	return c.BatchMaxSteps / c.HopSize
}
