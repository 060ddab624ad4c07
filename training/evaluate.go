package training

import (
	"errors"
	"fmt"
	"io"
)

// evalEpoch runs one full pass over the evaluation dataset: both
// networks in inference mode, every batch scored through the same loss
// logic as training but with no gradient application, eval metrics
// accumulated, and comparison artifacts exported for the first few
// batches. Afterwards the metric means are logged, flushed to the
// summary sink, and reset.
func (t *GANTrainer) evalEpoch() error {
	t.log.Infof("(steps: %d) start evaluation", t.state.Steps)
	t.generator.Eval()
	t.discriminator.Eval()
	defer func() {
		t.generator.Train()
		t.discriminator.Train()
	}()

	t.evalLoader.Reset()
	evalSteps := 0
	for {
		batch, err := t.evalLoader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("next evaluation batch: %w", err)
		}
		evalSteps++

		if err := t.evalStep(batch); err != nil {
			return fmt.Errorf("evaluation step %d: %w", evalSteps, err)
		}

		if evalSteps <= t.cfg.NumSaveIntermediateResults {
			// export failures must not abort the pass
			if err := t.saveIntermediateResults(batch, evalSteps); err != nil {
				t.log.WithError(err).Warnf("(steps: %d) failed to save intermediate result %d", t.state.Steps, evalSteps)
			}
		}
	}
	t.log.Infof("(steps: %d) finished evaluation (%d steps per epoch)", t.state.Steps, evalSteps)

	for _, name := range t.evalMetrics.Names() {
		value := t.evalMetrics.Result(name)
		t.log.Infof("(steps: %d) eval_%s = %.4f", t.state.Steps, name, value)
		if err := t.summary.Write(name, value, t.state.Steps, "eval"); err != nil {
			return fmt.Errorf("write eval summary: %w", err)
		}
	}
	t.evalMetrics.ResetAll()
	return nil
}

// evalStep scores one evaluation batch. The discriminator outputs on
// the generated waveform are computed once and shared between the
// generator-loss and discriminator-loss portions.
func (t *GANTrainer) evalStep(batch *Batch) error {
	yHat, err := t.generator.Forward(batch.Mels)
	if err != nil {
		return fmt.Errorf("generator forward: %w", err)
	}
	pHat, err := t.discriminator.Forward(yHat)
	if err != nil {
		return fmt.Errorf("discriminator forward on generated: %w", err)
	}
	yReal, err := withChannelDim(batch.Audio)
	if err != nil {
		return err
	}
	p, err := t.discriminator.Forward(yReal)
	if err != nil {
		return fmt.Errorf("discriminator forward on real: %w", err)
	}

	advLoss, fmLoss, genLoss, err := t.generatorLosses(pHat, p)
	if err != nil {
		return err
	}
	realLoss, fakeLoss, disLoss, err := discriminatorLosses(p, pHat)
	if err != nil {
		return err
	}

	if err := recordGeneratorMetrics(t.evalMetrics, advLoss, fmLoss, genLoss); err != nil {
		return err
	}
	return recordDiscriminatorMetrics(t.evalMetrics, realLoss, fakeLoss, disLoss)
}

// saveIntermediateResults renders the batch through the generator and
// hands each ground-truth/generated waveform pair to the exporter.
func (t *GANTrainer) saveIntermediateResults(batch *Batch, idx int) error {
	if t.exporter == nil {
		return nil
	}

	yHat, err := t.generator.Forward(batch.Mels)
	if err != nil {
		return fmt.Errorf("generator forward: %w", err)
	}

	audioShape := batch.Audio.Size()
	batchSize, steps := audioShape[0], audioShape[1]
	genSteps := yHat.Size()[1]

	audioData, err := batch.Audio.GetFloat32Data()
	if err != nil {
		return err
	}
	genData, err := yHat.GetFloat32Data()
	if err != nil {
		return err
	}

	for b := 0; b < batchSize; b++ {
		groundTruth := audioData[b*steps : (b+1)*steps]
		generated := genData[b*genSteps : (b+1)*genSteps]
		if err := t.exporter.Export(groundTruth, generated, t.state.Steps, idx, t.cfg.SamplingRate); err != nil {
			return err
		}
	}
	return nil
}
