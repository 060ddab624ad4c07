// Command melgan-train trains a MelGAN vocoder: a mel-spectrogram
// conditioned waveform generator adversarially paired with a
// multi-scale discriminator.
package main

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/tsawler/go-vocoder/checkpoints"
	"github.com/tsawler/go-vocoder/config"
	"github.com/tsawler/go-vocoder/dataset"
	"github.com/tsawler/go-vocoder/export"
	"github.com/tsawler/go-vocoder/melspec"
	"github.com/tsawler/go-vocoder/models"
	"github.com/tsawler/go-vocoder/tensor"
	"github.com/tsawler/go-vocoder/training"
)

func main() {
	var (
		trainDumpdir = pflag.String("train-dumpdir", "", "directory of training audio files (either this or --train-wav-scp)")
		trainWavSCP  = pflag.String("train-wav-scp", "", "kaldi-style wav.scp index for training")
		devDumpdir   = pflag.String("dev-dumpdir", "", "directory of validation audio files (either this or --dev-wav-scp)")
		devWavSCP    = pflag.String("dev-wav-scp", "", "kaldi-style wav.scp index for validation")
		outdir       = pflag.String("outdir", "", "directory for checkpoints, summaries, and predictions (required)")
		configPath   = pflag.String("config", "", "yaml configuration file (required)")
		resume       = pflag.String("resume", "", "checkpoint to resume training from")
		pretrain     = pflag.String("pretrain", "", "checkpoint to load pretrained weights from")
		genMixed     = pflag.Bool("generator-mixed-precision", false, "use mixed precision for the generator")
		disMixed     = pflag.Bool("discriminator-mixed-precision", false, "use mixed precision for the discriminator")
		verbose      = pflag.CountP("verbose", "v", "logging verbosity (repeat for more)")
	)
	pflag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stdout)
	switch {
	case *verbose > 1:
		log.SetLevel(logrus.DebugLevel)
	case *verbose > 0:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
		log.Warn("skipping debug/info messages")
	}

	if *outdir == "" {
		log.Fatal("--outdir is required")
	}
	if *configPath == "" {
		log.Fatal("--config is required")
	}
	if (*trainDumpdir == "") == (*trainWavSCP == "") {
		log.Fatal("specify exactly one of --train-dumpdir or --train-wav-scp")
	}
	if (*devDumpdir == "") == (*devWavSCP == "") {
		log.Fatal("specify exactly one of --dev-dumpdir or --dev-wav-scp")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Save(*outdir); err != nil {
		log.Fatal(err)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	extractor, err := melspec.NewExtractor(melspec.Params{
		SampleRate: cfg.SamplingRate,
		FFTSize:    cfg.Mel.FFTSize,
		WinSize:    cfg.Mel.WinSize,
		HopSize:    cfg.HopSize,
		NumMels:    cfg.Mel.NumMels,
		FMin:       cfg.Mel.FMin,
		FMax:       cfg.Mel.FMax,
	})
	if err != nil {
		log.Fatal(err)
	}

	threshold := cfg.MelLengthThreshold()
	trainData, err := openDataset(*trainDumpdir, *trainWavSCP, cfg, extractor, threshold)
	if err != nil {
		log.Fatalf("training data: %v", err)
	}
	devData, err := openDataset(*devDumpdir, *devWavSCP, cfg, extractor, threshold)
	if err != nil {
		log.Fatalf("validation data: %v", err)
	}
	log.Infof("training examples: %d, validation examples: %d", trainData.Len(), devData.Len())

	trainCollater, err := training.NewCollater(cfg.BatchMaxSteps, cfg.HopSize, rng)
	if err != nil {
		log.Fatal(err)
	}
	evalCollater, err := training.NewCollater(0, cfg.HopSize, nil)
	if err != nil {
		log.Fatal(err)
	}
	trainLoader, err := training.NewDataLoader(trainData, cfg.BatchSize, trainCollater, true, rng)
	if err != nil {
		log.Fatal(err)
	}
	evalLoader, err := training.NewDataLoader(devData, 1, evalCollater, false, nil)
	if err != nil {
		log.Fatal(err)
	}

	generator, err := models.NewGenerator(cfg.Generator, rng)
	if err != nil {
		log.Fatalf("build generator: %v", err)
	}
	discriminator, err := models.NewMultiScaleDiscriminator(cfg.Discriminator, rng)
	if err != nil {
		log.Fatalf("build discriminator: %v", err)
	}
	generator.SetHalfPrecision(*genMixed)
	discriminator.SetHalfPrecision(*disMixed)

	genOpt, err := newOptimizer(generator.Parameters(), cfg.GeneratorOptimizer, *genMixed)
	if err != nil {
		log.Fatalf("generator optimizer: %v", err)
	}
	disOpt, err := newOptimizer(discriminator.Parameters(), cfg.DiscriminatorOptimizer, *disMixed)
	if err != nil {
		log.Fatalf("discriminator optimizer: %v", err)
	}

	ckptManager, err := checkpoints.NewManager(filepath.Join(*outdir, "checkpoints"), cfg.MaxCheckpointsToKeep)
	if err != nil {
		log.Fatal(err)
	}
	summary, err := training.NewJSONLSummaryWriter(*outdir)
	if err != nil {
		log.Fatal(err)
	}
	defer summary.Close()

	trainer, err := training.NewGANTrainer(training.TrainerOptions{
		Config: training.TrainerConfig{
			LambdaFeatMatch:             float32(cfg.LambdaFeatMatch),
			Scales:                      cfg.Discriminator.Scales,
			DownsampleScales:            len(cfg.Discriminator.DownsampleScales),
			TrainMaxSteps:               cfg.TrainMaxSteps,
			LogIntervalSteps:            cfg.LogIntervalSteps,
			SaveIntervalSteps:           cfg.SaveIntervalSteps,
			NumSaveIntermediateResults:  cfg.NumSaveIntermediateResults,
			SamplingRate:                cfg.SamplingRate,
			GeneratorMixedPrecision:     *genMixed,
			DiscriminatorMixedPrecision: *disMixed,
		},
		Generator:     generator,
		Discriminator: discriminator,
		GenOptimizer:  genOpt,
		DisOptimizer:  disOpt,
		TrainLoader:   trainLoader,
		EvalLoader:    evalLoader,
		Checkpoints:   ckptManager,
		Summary:       summary,
		Exporter:      export.NewArtifactExporter(*outdir),
		Logger:        log,
	})
	if err != nil {
		log.Fatal(err)
	}

	if *pretrain != "" {
		if err := trainer.LoadPretrained(*pretrain); err != nil {
			log.Fatal(err)
		}
		log.Infof("successfully loaded pretrained weights from %s", *pretrain)
	}
	if *resume != "" {
		if err := trainer.LoadCheckpoint(*resume); err != nil {
			log.Fatal(err)
		}
		log.Infof("successfully resumed from %s (steps %d)", *resume, trainer.State().Steps)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := trainer.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Infof("interrupted @ %d steps, progress checkpointed", trainer.State().Steps)
			return
		}
		log.Fatal(err)
	}
}

// openDataset builds whichever dataset flavor the flags selected; the
// callers already guarantee exactly one source is set.
func openDataset(dumpdir, wavSCP string, cfg *config.Config, extractor *melspec.Extractor, melLengthThreshold int) (training.Dataset, error) {
	if dumpdir != "" {
		return dataset.NewAudioMelDataset(dumpdir, cfg.Format, extractor, melLengthThreshold, cfg.AllowCache)
	}
	return dataset.NewSCPDataset(wavSCP, extractor, melLengthThreshold, cfg.AllowCache)
}

func newOptimizer(params []*tensor.Tensor, p config.OptimizerParams, mixed bool) (*training.Adam, error) {
	var scaler *training.GradScaler
	if mixed {
		scaler = training.NewGradScaler()
	}
	return training.NewAdam(params, training.AdamConfig{
		LearningRate: p.LearningRate,
		Beta1:        p.Beta1,
		Beta2:        p.Beta2,
		Epsilon:      p.Epsilon,
	}, scaler)
}
