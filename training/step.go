package training

import (
	"fmt"

	"github.com/tsawler/go-vocoder/tensor"
)

// gradientStep runs one backward/update cycle for a single network.
// With mixed precision the loss is scaled before differentiation and
// the parameter gradients unscaled afterwards, so small gradients do
// not underflow in half-precision arithmetic. Step is always called;
// the optimizer itself skips the update when gradients are not finite
// and adapts the loss scale.
func gradientStep(loss *tensor.Tensor, opt Optimizer, params []*tensor.Tensor, mixedPrecision bool) error {
	opt.ZeroGrad()

	target := loss
	if mixedPrecision {
		scaler := opt.Scaler()
		if scaler == nil {
			return fmt.Errorf("mixed precision enabled but optimizer has no loss scaler")
		}
		target = scaler.ScaleLoss(loss)
	}

	if err := target.Backward(); err != nil {
		return fmt.Errorf("backward: %w", err)
	}

	if mixedPrecision {
		opt.Scaler().Unscale(params)
	}
	return opt.Step()
}

// oneStepGenerator runs one generator training step on a batch and
// returns the generated waveform for the discriminator step, saving a
// second generator forward pass.
func (t *GANTrainer) oneStepGenerator(y, mels *tensor.Tensor) (*tensor.Tensor, error) {
	yHat, err := t.generator.Forward(mels)
	if err != nil {
		return nil, fmt.Errorf("generator forward: %w", err)
	}
	pHat, err := t.discriminator.Forward(yHat)
	if err != nil {
		return nil, fmt.Errorf("discriminator forward on generated: %w", err)
	}
	yReal, err := withChannelDim(y)
	if err != nil {
		return nil, err
	}
	p, err := t.discriminator.Forward(yReal)
	if err != nil {
		return nil, fmt.Errorf("discriminator forward on real: %w", err)
	}

	advLoss, fmLoss, genLoss, err := t.generatorLosses(pHat, p)
	if err != nil {
		return nil, err
	}

	if err := gradientStep(genLoss, t.genOptimizer, t.generator.Parameters(), t.cfg.GeneratorMixedPrecision); err != nil {
		return nil, err
	}

	if err := recordGeneratorMetrics(t.trainMetrics, advLoss, fmLoss, genLoss); err != nil {
		return nil, err
	}
	return yHat, nil
}

// oneStepDiscriminator runs one discriminator training step on the
// real waveform and the waveform the generator just produced. The
// generated waveform is detached first so this step's backward pass
// never reaches generator parameters.
func (t *GANTrainer) oneStepDiscriminator(y, yHat *tensor.Tensor) error {
	yReal, err := withChannelDim(y)
	if err != nil {
		return err
	}
	yFake, err := yHat.Detach()
	if err != nil {
		return fmt.Errorf("detach generated waveform: %w", err)
	}

	p, err := t.discriminator.Forward(yReal)
	if err != nil {
		return fmt.Errorf("discriminator forward on real: %w", err)
	}
	pHat, err := t.discriminator.Forward(yFake)
	if err != nil {
		return fmt.Errorf("discriminator forward on generated: %w", err)
	}

	realLoss, fakeLoss, disLoss, err := discriminatorLosses(p, pHat)
	if err != nil {
		return err
	}

	if err := gradientStep(disLoss, t.disOptimizer, t.discriminator.Parameters(), t.cfg.DiscriminatorMixedPrecision); err != nil {
		return err
	}

	return recordDiscriminatorMetrics(t.trainMetrics, realLoss, fakeLoss, disLoss)
}

// generatorLosses computes the adversarial, feature-matching, and
// total generator loss from the discriminator outputs on generated
// (pHat) and real (p) waveforms.
//
// The adversarial term sums a one-sided hinge error over each scale's
// final decision, penalizing the generator wherever the discriminator
// flags its output as fake. The feature-matching term accumulates the
// mean absolute error between real and generated activations at every
// intermediate layer, normalized by scale count and layer depth.
func (t *GANTrainer) generatorLosses(pHat, p [][]*tensor.Tensor) (advLoss, fmLoss, genLoss *tensor.Tensor, err error) {
	if len(pHat) != len(p) {
		return nil, nil, nil, fmt.Errorf("scale count mismatch: %d generated vs %d real", len(pHat), len(p))
	}

	for i := range pHat {
		advLoss = addLoss(advLoss, ReluError(0.0, pHat[i][len(pHat[i])-1]))
	}
	if advLoss == nil {
		return nil, nil, nil, fmt.Errorf("discriminator produced no scales")
	}

	wt := t.cfg.featMatchWeight()
	for i := range pHat {
		if len(pHat[i]) != len(p[i]) {
			return nil, nil, nil, fmt.Errorf("scale %d layer count mismatch: %d generated vs %d real", i, len(pHat[i]), len(p[i]))
		}
		for j := 0; j < len(pHat[i])-1; j++ {
			fmLoss = addLoss(fmLoss, tensor.ScaleAutograd(MAEError(pHat[i][j], p[i][j]), wt))
		}
	}

	genLoss = advLoss
	if fmLoss != nil {
		genLoss = tensor.AddAutograd(genLoss, tensor.ScaleAutograd(fmLoss, t.cfg.LambdaFeatMatch))
	}
	return advLoss, fmLoss, genLoss, nil
}

// discriminatorLosses computes the hinge real/fake losses and their
// sum from each scale's final decision on real (p) and generated
// (pHat) waveforms.
func discriminatorLosses(p, pHat [][]*tensor.Tensor) (realLoss, fakeLoss, disLoss *tensor.Tensor, err error) {
	if len(p) != len(pHat) {
		return nil, nil, nil, fmt.Errorf("scale count mismatch: %d real vs %d generated", len(p), len(pHat))
	}

	for i := range p {
		realLoss = addLoss(realLoss, ReluError(1.0, p[i][len(p[i])-1]))
		decision := pHat[i][len(pHat[i])-1]
		fakeLoss = addLoss(fakeLoss, ReluError(1.0, tensor.ScaleAutograd(decision, -1.0)))
	}

	if realLoss == nil || fakeLoss == nil {
		return nil, nil, nil, fmt.Errorf("discriminator produced no scales")
	}
	disLoss = tensor.AddAutograd(realLoss, fakeLoss)
	return realLoss, fakeLoss, disLoss, nil
}

func recordGeneratorMetrics(m *Metrics, advLoss, fmLoss, genLoss *tensor.Tensor) error {
	adv, err := lossValue(advLoss)
	if err != nil {
		return fmt.Errorf("adversarial loss: %w", err)
	}
	fm, err := lossValue(fmLoss)
	if err != nil {
		return fmt.Errorf("feature-matching loss: %w", err)
	}
	gen, err := lossValue(genLoss)
	if err != nil {
		return fmt.Errorf("generator loss: %w", err)
	}
	m.Update("adversarial_loss", adv)
	m.Update("fm_loss", fm)
	m.Update("gen_loss", gen)
	return nil
}

func recordDiscriminatorMetrics(m *Metrics, realLoss, fakeLoss, disLoss *tensor.Tensor) error {
	realVal, err := lossValue(realLoss)
	if err != nil {
		return fmt.Errorf("real loss: %w", err)
	}
	fakeVal, err := lossValue(fakeLoss)
	if err != nil {
		return fmt.Errorf("fake loss: %w", err)
	}
	disVal, err := lossValue(disLoss)
	if err != nil {
		return fmt.Errorf("discriminator loss: %w", err)
	}
	m.Update("real_loss", realVal)
	m.Update("fake_loss", fakeVal)
	m.Update("dis_loss", disVal)
	return nil
}

// lossValue extracts the scalar value of a loss term; a nil term (no
// contributing layers) counts as zero.
func lossValue(loss *tensor.Tensor) (float32, error) {
	if loss == nil {
		return 0, nil
	}
	return loss.Item()
}

// withChannelDim reshapes a (B, T) waveform batch to the (B, T, 1)
// layout the discriminator expects.
func withChannelDim(y *tensor.Tensor) (*tensor.Tensor, error) {
	shape := y.Size()
	if len(shape) == 3 && shape[2] == 1 {
		return y, nil
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("waveform batch must be 2-dimensional, got shape %v", shape)
	}
	reshaped, err := y.Reshape([]int{shape[0], shape[1], 1})
	if err != nil {
		return nil, fmt.Errorf("add channel dimension: %w", err)
	}
	return reshaped, nil
}
