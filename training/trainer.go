package training

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/tsawler/go-vocoder/checkpoints"
	"github.com/tsawler/go-vocoder/tensor"
)

// Generator maps mel-spectrogram features (B, frames, F) to a raw
// waveform (B, frames*hop_size, 1).
type Generator interface {
	Forward(mels *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	Train()
	Eval()
}

// Discriminator maps a waveform (B, T, 1) to one slice per scale, each
// holding the scale's intermediate activations followed by its final
// decision map.
type Discriminator interface {
	Forward(wave *tensor.Tensor) ([][]*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	Train()
	Eval()
}

// Exporter writes intermediate evaluation artifacts (waveform plots
// and audio renders) for a ground-truth/generated pair. Export errors
// are logged by the caller and never abort evaluation.
type Exporter interface {
	Export(groundTruth, generated []float32, steps, index, samplingRate int) error
}

// TrainerState holds the trainer's progress counters. Steps and Epochs
// only ever increase; FinishTrain latches true once Steps reaches the
// configured maximum. All mutation happens in the driver's
// step-advance and checkpoint-load paths, never inside loss code.
type TrainerState struct {
	Steps       int
	Epochs      int
	FinishTrain bool
}

// TrainerConfig carries the hyperparameters the training loop needs.
type TrainerConfig struct {
	LambdaFeatMatch float32

	// discriminator topology, used for feature-matching normalization
	Scales           int
	DownsampleScales int

	TrainMaxSteps     int
	LogIntervalSteps  int
	SaveIntervalSteps int

	NumSaveIntermediateResults int
	SamplingRate               int

	GeneratorMixedPrecision     bool
	DiscriminatorMixedPrecision bool
}

func (c TrainerConfig) validate() error {
	if c.Scales < 1 {
		return fmt.Errorf("discriminator scales must be at least 1, got %d", c.Scales)
	}
	if c.DownsampleScales < 1 {
		return fmt.Errorf("downsample scale count must be at least 1, got %d", c.DownsampleScales)
	}
	if c.TrainMaxSteps < 1 {
		return fmt.Errorf("train_max_steps must be at least 1, got %d", c.TrainMaxSteps)
	}
	if c.LogIntervalSteps < 1 {
		return fmt.Errorf("log_interval_steps must be at least 1, got %d", c.LogIntervalSteps)
	}
	if c.SamplingRate < 1 {
		return fmt.Errorf("sampling_rate must be positive, got %d", c.SamplingRate)
	}
	return nil
}

// featMatchWeight is the combined per-scale, per-depth normalization
// applied to every feature-matching term, so no single discriminator
// scale or layer depth dominates the loss.
func (c TrainerConfig) featMatchWeight() float32 {
	featWeights := 4.0 / float32(c.DownsampleScales+1)
	pWeights := 1.0 / float32(c.Scales)
	return pWeights * featWeights
}

// GANTrainer drives adversarial training: one generator update
// followed by one discriminator update per batch, periodic metric
// flushes and checkpoints, and a full evaluation pass per epoch.
type GANTrainer struct {
	cfg   TrainerConfig
	state TrainerState

	generator     Generator
	discriminator Discriminator
	genOptimizer  Optimizer
	disOptimizer  Optimizer

	trainLoader *DataLoader
	evalLoader  *DataLoader

	trainMetrics *Metrics
	evalMetrics  *Metrics

	ckpt     *checkpoints.Manager
	summary  SummaryWriter
	exporter Exporter

	log      *logrus.Logger
	progress *ProgressBar
}

// TrainerOptions gathers the collaborators for NewGANTrainer.
type TrainerOptions struct {
	Config        TrainerConfig
	Generator     Generator
	Discriminator Discriminator
	GenOptimizer  Optimizer
	DisOptimizer  Optimizer
	TrainLoader   *DataLoader
	EvalLoader    *DataLoader
	Checkpoints   *checkpoints.Manager
	Summary       SummaryWriter
	Exporter      Exporter
	Logger        *logrus.Logger
}

// NewGANTrainer wires the training loop together. All collaborators
// except the exporter are required; without an exporter, intermediate
// results are simply not saved.
func NewGANTrainer(opts TrainerOptions) (*GANTrainer, error) {
	if err := opts.Config.validate(); err != nil {
		return nil, err
	}
	if opts.Generator == nil || opts.Discriminator == nil {
		return nil, fmt.Errorf("generator and discriminator are required")
	}
	if opts.GenOptimizer == nil || opts.DisOptimizer == nil {
		return nil, fmt.Errorf("both optimizers are required")
	}
	if opts.Config.GeneratorMixedPrecision && opts.GenOptimizer.Scaler() == nil {
		return nil, fmt.Errorf("generator mixed precision requires an optimizer with a loss scaler")
	}
	if opts.Config.DiscriminatorMixedPrecision && opts.DisOptimizer.Scaler() == nil {
		return nil, fmt.Errorf("discriminator mixed precision requires an optimizer with a loss scaler")
	}
	if opts.TrainLoader == nil || opts.EvalLoader == nil {
		return nil, fmt.Errorf("train and eval data loaders are required")
	}
	if opts.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint manager is required")
	}
	if opts.Summary == nil {
		return nil, fmt.Errorf("summary writer is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &GANTrainer{
		cfg:           opts.Config,
		generator:     opts.Generator,
		discriminator: opts.Discriminator,
		genOptimizer:  opts.GenOptimizer,
		disOptimizer:  opts.DisOptimizer,
		trainLoader:   opts.TrainLoader,
		evalLoader:    opts.EvalLoader,
		trainMetrics:  NewMetrics(MetricNames),
		evalMetrics:   NewMetrics(MetricNames),
		ckpt:          opts.Checkpoints,
		summary:       opts.Summary,
		exporter:      opts.Exporter,
		log:           opts.Logger,
	}, nil
}

// State returns a copy of the current progress counters.
func (t *GANTrainer) State() TrainerState {
	return t.state
}

// Run executes the training loop until train_max_steps is reached or
// ctx is cancelled. Cancellation is observed only at step boundaries;
// in both exits a final checkpoint is saved first, so no progress past
// the last completed step is lost. On cancellation Run returns the
// context's error after the save succeeds.
func (t *GANTrainer) Run(ctx context.Context) error {
	t.generator.Train()
	t.discriminator.Train()
	t.progress = NewProgressBar("[train]", t.cfg.TrainMaxSteps, t.state.Steps)

	t.log.WithFields(logrus.Fields{
		"steps":  t.state.Steps,
		"epochs": t.state.Epochs,
	}).Info("start training")

	for !t.state.FinishTrain {
		select {
		case <-ctx.Done():
			if _, err := t.SaveCheckpoint(); err != nil {
				return fmt.Errorf("checkpoint on cancellation: %w", err)
			}
			t.log.Infof("successfully saved checkpoint @ %d steps on cancellation", t.state.Steps)
			return ctx.Err()
		default:
		}

		batch, err := t.trainLoader.Next()
		if errors.Is(err, io.EOF) {
			t.state.Epochs++
			t.trainLoader.Reset()
			t.log.Infof("(steps: %d) finished %d epochs", t.state.Steps, t.state.Epochs)
			if err := t.evalEpoch(); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("next training batch: %w", err)
		}

		if err := t.trainStep(batch); err != nil {
			return fmt.Errorf("training step %d: %w", t.state.Steps+1, err)
		}
	}

	t.progress.Finish()
	path, err := t.SaveCheckpoint()
	if err != nil {
		return fmt.Errorf("final checkpoint: %w", err)
	}
	t.log.Infof("finished training @ %d steps, final checkpoint %s", t.state.Steps, path)
	return nil
}

// trainStep consumes one batch: generator update, then discriminator
// update reusing the generated waveform, then counter advance and the
// periodic log/save checks.
func (t *GANTrainer) trainStep(batch *Batch) error {
	yHat, err := t.oneStepGenerator(batch.Audio, batch.Mels)
	if err != nil {
		return fmt.Errorf("generator step: %w", err)
	}
	if err := t.oneStepDiscriminator(batch.Audio, yHat); err != nil {
		return fmt.Errorf("discriminator step: %w", err)
	}

	t.state.Steps++
	t.progress.Update(1)
	if t.state.Steps >= t.cfg.TrainMaxSteps {
		t.state.FinishTrain = true
	}

	if err := t.checkLogInterval(); err != nil {
		return err
	}
	return t.checkSaveInterval()
}

// checkLogInterval flushes train metrics to the log and the summary
// sink every log_interval_steps, then resets them.
func (t *GANTrainer) checkLogInterval() error {
	if t.state.Steps%t.cfg.LogIntervalSteps != 0 {
		return nil
	}

	shown := make(map[string]float64, len(MetricNames))
	for _, name := range MetricNames {
		value := t.trainMetrics.Result(name)
		t.log.Infof("(steps: %d) train_%s = %.4f", t.state.Steps, name, value)
		if err := t.summary.Write(name, value, t.state.Steps, "train"); err != nil {
			return fmt.Errorf("write train summary: %w", err)
		}
		shown[name] = float64(value)
	}
	t.progress.SetMetrics(shown)
	t.trainMetrics.ResetAll()
	return nil
}

func (t *GANTrainer) checkSaveInterval() error {
	if t.cfg.SaveIntervalSteps <= 0 || t.state.Steps%t.cfg.SaveIntervalSteps != 0 {
		return nil
	}
	path, err := t.SaveCheckpoint()
	if err != nil {
		return fmt.Errorf("interval checkpoint: %w", err)
	}
	t.log.Infof("(steps: %d) saved checkpoint %s", t.state.Steps, path)
	return nil
}

// SaveCheckpoint snapshots both networks, both optimizers, and the
// progress counters, and persists them through the checkpoint manager.
func (t *GANTrainer) SaveCheckpoint() (string, error) {
	genState, err := t.genOptimizer.State()
	if err != nil {
		return "", fmt.Errorf("generator optimizer state: %w", err)
	}
	disState, err := t.disOptimizer.State()
	if err != nil {
		return "", fmt.Errorf("discriminator optimizer state: %w", err)
	}

	genWeights, err := exportWeights(t.generator.Parameters(), "generator")
	if err != nil {
		return "", err
	}
	disWeights, err := exportWeights(t.discriminator.Parameters(), "discriminator")
	if err != nil {
		return "", err
	}

	return t.ckpt.Save(&checkpoints.Checkpoint{
		Generator:     genWeights,
		Discriminator: disWeights,
		GenOptimizer:  genState,
		DisOptimizer:  disState,
		TrainingState: checkpoints.TrainingState{
			Steps:  t.state.Steps,
			Epochs: t.state.Epochs,
		},
	})
}

// LoadCheckpoint restores a full training snapshot: weights, optimizer
// state, and the step/epoch counters. A missing or structurally
// incompatible checkpoint is a fatal error carrying the attempted path.
func (t *GANTrainer) LoadCheckpoint(path string) error {
	ckpt, err := checkpoints.Load(path)
	if err != nil {
		return err
	}

	if err := importWeights(t.generator.Parameters(), ckpt.Generator); err != nil {
		return fmt.Errorf("checkpoint %s: generator: %w", path, err)
	}
	if err := importWeights(t.discriminator.Parameters(), ckpt.Discriminator); err != nil {
		return fmt.Errorf("checkpoint %s: discriminator: %w", path, err)
	}
	if ckpt.GenOptimizer != nil {
		if err := t.genOptimizer.LoadState(ckpt.GenOptimizer); err != nil {
			return fmt.Errorf("checkpoint %s: generator optimizer: %w", path, err)
		}
	}
	if ckpt.DisOptimizer != nil {
		if err := t.disOptimizer.LoadState(ckpt.DisOptimizer); err != nil {
			return fmt.Errorf("checkpoint %s: discriminator optimizer: %w", path, err)
		}
	}

	t.state.Steps = ckpt.TrainingState.Steps
	t.state.Epochs = ckpt.TrainingState.Epochs
	t.state.FinishTrain = t.state.Steps >= t.cfg.TrainMaxSteps
	return nil
}

// LoadPretrained restores network weights only, leaving the optimizers
// and progress counters untouched. Used to warm-start a fresh run.
func (t *GANTrainer) LoadPretrained(path string) error {
	ckpt, err := checkpoints.Load(path)
	if err != nil {
		return err
	}
	if err := importWeights(t.generator.Parameters(), ckpt.Generator); err != nil {
		return fmt.Errorf("pretrained %s: generator: %w", path, err)
	}
	if err := importWeights(t.discriminator.Parameters(), ckpt.Discriminator); err != nil {
		return fmt.Errorf("pretrained %s: discriminator: %w", path, err)
	}
	return nil
}

func exportWeights(params []*tensor.Tensor, prefix string) ([]checkpoints.WeightTensor, error) {
	weights := make([]checkpoints.WeightTensor, 0, len(params))
	for i, p := range params {
		data, err := p.GetFloat32Data()
		if err != nil {
			return nil, fmt.Errorf("%s parameter %d: %w", prefix, i, err)
		}
		weights = append(weights, checkpoints.WeightTensor{
			Name:  fmt.Sprintf("%s.%d", prefix, i),
			Shape: p.Size(),
			Data:  append([]float32(nil), data...),
			Type:  "weight",
		})
	}
	return weights, nil
}

func importWeights(params []*tensor.Tensor, weights []checkpoints.WeightTensor) error {
	if len(weights) != len(params) {
		return fmt.Errorf("parameter count mismatch: checkpoint has %d tensors, model has %d", len(weights), len(params))
	}
	for i, p := range params {
		if len(weights[i].Data) != p.Numel() {
			return fmt.Errorf("tensor %s has %d elements, model parameter %d has %d",
				weights[i].Name, len(weights[i].Data), i, p.Numel())
		}
		data, err := p.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("model parameter %d: %w", i, err)
		}
		copy(data, weights[i].Data)
	}
	return nil
}
