package training

import (
	"fmt"
	"math/rand"
)

// Collater aligns a variable-length waveform/feature pair to a fixed
// training window. Randomness comes from the injected source so window
// selection stays reproducible per seed.
type Collater struct {
	batchMaxSteps int // 0 means derive from the input (evaluation mode)
	hopSize       int
	rng           *rand.Rand
}

// NewCollater creates a collater. batchMaxSteps of 0 selects evaluation
// mode: the window is derived from the waveform itself, trimmed down to
// a hop-aligned length with no random cropping.
func NewCollater(batchMaxSteps, hopSize int, rng *rand.Rand) (*Collater, error) {
	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive, got %d", hopSize)
	}
	if batchMaxSteps < 0 {
		return nil, fmt.Errorf("batch max steps must not be negative, got %d", batchMaxSteps)
	}
	if batchMaxSteps%hopSize != 0 {
		return nil, fmt.Errorf("batch max steps %d must be a multiple of hop size %d", batchMaxSteps, hopSize)
	}
	if batchMaxSteps > 0 && rng == nil {
		return nil, fmt.Errorf("a random source is required for training-mode collation")
	}
	return &Collater{
		batchMaxSteps: batchMaxSteps,
		hopSize:       hopSize,
		rng:           rng,
	}, nil
}

// BatchMaxSteps returns the configured window length in samples, 0 in
// evaluation mode.
func (c *Collater) BatchMaxSteps() int {
	return c.batchMaxSteps
}

// Collate crops or pads a waveform/mel pair to a fixed window:
//   - the waveform is right-padded with zeros to len(mel)*hop first, so
//     the alignment invariant len(audio) >= len(mel)*hop always holds
//   - when the features exceed the window, a start frame is picked
//     uniformly in [0, len(mel)-frames) and both sequences are cropped
//     at aligned offsets (startStep = startFrame*hop)
//   - otherwise both sequences are right-padded with zeros to the window
func (c *Collater) Collate(audio []float32, mel [][]float32) ([]float32, [][]float32, error) {
	if len(mel) == 0 {
		return nil, nil, fmt.Errorf("cannot collate empty feature sequence")
	}
	numMels := len(mel[0])

	batchMaxSteps := c.batchMaxSteps
	if batchMaxSteps == 0 {
		batchMaxSteps = (len(audio) / c.hopSize) * c.hopSize
		if batchMaxSteps == 0 {
			return nil, nil, fmt.Errorf("waveform of %d samples is shorter than one hop (%d)", len(audio), c.hopSize)
		}
	}
	batchMaxFrames := batchMaxSteps / c.hopSize

	if len(audio) < len(mel)*c.hopSize {
		padded := make([]float32, len(mel)*c.hopSize)
		copy(padded, audio)
		audio = padded
	}

	if len(mel) > batchMaxFrames {
		startFrame := c.rngIntn(len(mel) - batchMaxFrames)
		startStep := startFrame * c.hopSize
		audioOut := make([]float32, batchMaxSteps)
		copy(audioOut, audio[startStep:startStep+batchMaxSteps])
		melOut := make([][]float32, batchMaxFrames)
		for i := range melOut {
			melOut[i] = append([]float32(nil), mel[startFrame+i]...)
		}
		return audioOut, melOut, nil
	}

	audioOut := make([]float32, batchMaxSteps)
	copy(audioOut, audio)
	melOut := make([][]float32, batchMaxFrames)
	for i := range melOut {
		if i < len(mel) {
			melOut[i] = append([]float32(nil), mel[i]...)
		} else {
			melOut[i] = make([]float32, numMels)
		}
	}
	return audioOut, melOut, nil
}

func (c *Collater) rngIntn(n int) int {
	if c.rng == nil {
		// Evaluation-mode collaters never crop, but the derived window
		// can still be shorter than the features when the waveform was
		// truncated; fall back to the sequence start.
		return 0
	}
	return c.rng.Intn(n)
}
