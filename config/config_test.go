package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "sampling_rate: 22050\n"))
	require.NoError(t, err)

	assert.Equal(t, 22050, cfg.SamplingRate)
	assert.Equal(t, 256, cfg.HopSize)
	assert.Equal(t, FormatWAV, cfg.Format)
	assert.Equal(t, 16, cfg.BatchSize)
	assert.Equal(t, 25600, cfg.BatchMaxSteps)
	assert.True(t, cfg.RemoveShortSamples)
	assert.True(t, cfg.AllowCache)
	assert.Equal(t, 10.0, cfg.LambdaFeatMatch)
	assert.Equal(t, 4000000, cfg.TrainMaxSteps)
	assert.Equal(t, 20, cfg.MaxCheckpointsToKeep)
	assert.Equal(t, int64(42), cfg.Seed)

	assert.Equal(t, 80, cfg.Generator.NumMels)
	assert.Equal(t, []int{8, 8, 2, 2}, cfg.Generator.UpsampleScales)
	assert.Equal(t, 256, cfg.Generator.HopSize())
	assert.Equal(t, 3, cfg.Discriminator.Scales)

	assert.Equal(t, 1e-4, cfg.GeneratorOptimizer.LearningRate)
	assert.Equal(t, 0.9, cfg.GeneratorOptimizer.Beta1)
	assert.Equal(t, 1e-4, cfg.DiscriminatorOptimizer.LearningRate)

	assert.Equal(t, 1024, cfg.Mel.FFTSize)
	assert.Equal(t, 80, cfg.Mel.NumMels)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
sampling_rate: 16000
hop_size: 64
batch_size: 4
batch_max_steps: 1280
format: flac
seed: 7
generator_params:
  upsample_scales: [4, 4, 2, 2]
generator_optimizer_params:
  lr: 0.0005
`))
	require.NoError(t, err)

	assert.Equal(t, 16000, cfg.SamplingRate)
	assert.Equal(t, 64, cfg.HopSize)
	assert.Equal(t, FormatFLAC, cfg.Format)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, []int{4, 4, 2, 2}, cfg.Generator.UpsampleScales)
	assert.Equal(t, 0.0005, cfg.GeneratorOptimizer.LearningRate)
	// untouched defaults survive alongside overrides
	assert.Equal(t, 0.999, cfg.GeneratorOptimizer.Beta2)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.yml")
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"BadFormat", "format: mp3\n"},
		{"WindowNotHopMultiple", "batch_max_steps: 25601\n"},
		{"HopMismatch", "hop_size: 128\n"}, // generator scales still produce 256
		{"ZeroLearningRate", "generator_optimizer_params:\n  lr: 0\n"},
		{"MelBinMismatch", "mel_params:\n  num_mels: 40\n"},
		{"ZeroCheckpoints", "max_checkpoints_to_keep: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestSaveWritesSnapshot(t *testing.T) {
	cfg, err := Load(writeConfig(t, "sampling_rate: 22050\n"))
	require.NoError(t, err)

	outdir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, cfg.Save(outdir))

	data, err := os.ReadFile(filepath.Join(outdir, "config.yml"))
	require.NoError(t, err)

	var saved map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &saved))
	assert.Equal(t, Version, saved["version"])
	assert.Equal(t, 22050, saved["sampling_rate"])
	assert.Contains(t, saved, "saved_at")

	// a saved snapshot must load back cleanly
	reloaded, err := Load(filepath.Join(outdir, "config.yml"))
	require.NoError(t, err)
	assert.Equal(t, cfg.HopSize, reloaded.HopSize)
	assert.Equal(t, cfg.Generator.UpsampleScales, reloaded.Generator.UpsampleScales)
}

func TestMelLengthThreshold(t *testing.T) {
	cfg := &Config{BatchMaxSteps: 25600, HopSize: 256, RemoveShortSamples: true}
	assert.Equal(t, 100, cfg.MelLengthThreshold())

	cfg.RemoveShortSamples = false
	assert.Equal(t, 0, cfg.MelLengthThreshold())
}
