// Package melspec extracts log-mel spectrograms from raw audio, for
// conditioning the vocoder when no precomputed features are available.
package melspec

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/r9y9/gossp/stft"
	"gonum.org/v1/gonum/mat"
)

const logFloor = 1e-5

// Params configures the short-time analysis and the mel filterbank.
type Params struct {
	SampleRate int
	FFTSize    int
	WinSize    int
	HopSize    int
	NumMels    int
	FMin       float64
	FMax       float64
}

// Extractor computes log-mel spectrograms. Safe for reuse across
// files; the window and filterbank are built once.
type Extractor struct {
	p   Params
	win []float64
	fb  *mat.Dense // (NumMels, FFTSize/2+1)
}

// NewExtractor validates the parameters and precomputes the analysis
// window and the triangular mel filterbank.
func NewExtractor(p Params) (*Extractor, error) {
	if p.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", p.SampleRate)
	}
	if p.FFTSize <= 0 || p.FFTSize&(p.FFTSize-1) != 0 {
		return nil, fmt.Errorf("fft size must be a positive power of two, got %d", p.FFTSize)
	}
	if p.WinSize <= 0 || p.WinSize > p.FFTSize {
		return nil, fmt.Errorf("window size must be in (0, fft size], got %d (fft %d)", p.WinSize, p.FFTSize)
	}
	if p.HopSize <= 0 || p.HopSize > p.WinSize {
		return nil, fmt.Errorf("hop size must be in (0, window size], got %d (window %d)", p.HopSize, p.WinSize)
	}
	if p.NumMels <= 0 {
		return nil, fmt.Errorf("mel band count must be positive, got %d", p.NumMels)
	}
	nyquist := float64(p.SampleRate) / 2
	if p.FMax <= 0 || p.FMax > nyquist {
		p.FMax = nyquist
	}
	if p.FMin < 0 || p.FMin >= p.FMax {
		return nil, fmt.Errorf("fmin must be in [0, fmax), got %v (fmax %v)", p.FMin, p.FMax)
	}

	return &Extractor{
		p:   p,
		win: stft.New(p.HopSize, p.WinSize).Window,
		fb:  melFilterbank(p),
	}, nil
}

// NumMels returns the number of mel bands per frame.
func (e *Extractor) NumMels() int {
	return e.p.NumMels
}

// HopSize returns the number of waveform samples per feature frame.
func (e *Extractor) HopSize() int {
	return e.p.HopSize
}

// Extract computes the log-mel spectrogram of audio, one frame per
// HopSize samples. The signal is center-padded so frame t is centered
// on sample t*HopSize, and the frame count is trimmed to
// len(audio)/HopSize so features stay hop-aligned with the waveform.
func (e *Extractor) Extract(audio []float32) ([][]float32, error) {
	if len(audio) < e.p.HopSize {
		return nil, fmt.Errorf("audio too short: %d samples, need at least one hop (%d)", len(audio), e.p.HopSize)
	}

	half := e.p.FFTSize / 2
	padded := make([]float64, len(audio)+e.p.FFTSize)
	for i, s := range audio {
		padded[half+i] = float64(s)
	}

	frames := len(audio) / e.p.HopSize
	bins := half + 1
	frame := make([]float64, e.p.FFTSize)
	power := mat.NewVecDense(bins, nil)
	melVec := mat.NewVecDense(e.p.NumMels, nil)

	out := make([][]float32, frames)
	for t := 0; t < frames; t++ {
		start := t * e.p.HopSize
		for i := 0; i < e.p.FFTSize; i++ {
			frame[i] = 0
		}
		// window the frame, zero-padded up to the FFT size
		for i := 0; i < e.p.WinSize; i++ {
			frame[i] = padded[start+i] * e.win[i]
		}

		spectrum := fft.FFTReal(frame)
		for k := 0; k < bins; k++ {
			re := real(spectrum[k])
			im := imag(spectrum[k])
			power.SetVec(k, re*re+im*im)
		}

		melVec.MulVec(e.fb, power)
		row := make([]float32, e.p.NumMels)
		for m := 0; m < e.p.NumMels; m++ {
			v := melVec.AtVec(m)
			if v < logFloor {
				v = logFloor
			}
			row[m] = float32(math.Log(v))
		}
		out[t] = row
	}
	return out, nil
}

func hzToMel(hz float64) float64 {
	return 1127.0 * math.Log(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Exp(mel/1127.0) - 1.0)
}

// melFilterbank builds triangular filters spaced evenly on the mel
// scale, as a (NumMels, FFTSize/2+1) matrix applied to power spectra.
func melFilterbank(p Params) *mat.Dense {
	bins := p.FFTSize/2 + 1
	fb := mat.NewDense(p.NumMels, bins, nil)

	melMin := hzToMel(p.FMin)
	melMax := hzToMel(p.FMax)
	centers := make([]float64, p.NumMels+2)
	for i := range centers {
		mel := melMin + (melMax-melMin)*float64(i)/float64(p.NumMels+1)
		centers[i] = melToHz(mel)
	}

	binHz := float64(p.SampleRate) / float64(p.FFTSize)
	for m := 0; m < p.NumMels; m++ {
		lo, mid, hi := centers[m], centers[m+1], centers[m+2]
		for k := 0; k < bins; k++ {
			f := float64(k) * binHz
			switch {
			case f <= lo || f >= hi:
				// outside the triangle
			case f < mid:
				fb.Set(m, k, (f-lo)/(mid-lo))
			default:
				fb.Set(m, k, (hi-f)/(hi-mid))
			}
		}
	}
	return fb
}
