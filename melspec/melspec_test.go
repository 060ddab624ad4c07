package melspec

import (
	"math"
	"testing"
)

func testParams() Params {
	return Params{
		SampleRate: 16000,
		FFTSize:    256,
		WinSize:    256,
		HopSize:    64,
		NumMels:    8,
		FMin:       80,
		FMax:       7600,
	}
}

func TestNewExtractorValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"ZeroSampleRate", func(p *Params) { p.SampleRate = 0 }},
		{"FFTNotPowerOfTwo", func(p *Params) { p.FFTSize = 100 }},
		{"WindowExceedsFFT", func(p *Params) { p.WinSize = 512 }},
		{"HopExceedsWindow", func(p *Params) { p.HopSize = 512 }},
		{"ZeroHop", func(p *Params) { p.HopSize = 0 }},
		{"ZeroMels", func(p *Params) { p.NumMels = 0 }},
		{"NegativeFMin", func(p *Params) { p.FMin = -1 }},
		{"FMinAboveFMax", func(p *Params) { p.FMin = 7600; p.FMax = 80 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			if _, err := NewExtractor(p); err == nil {
				t.Error("expected a parameter error")
			}
		})
	}
}

func TestNewExtractorClampsFMax(t *testing.T) {
	p := testParams()
	p.FMax = 100000 // above Nyquist
	if _, err := NewExtractor(p); err != nil {
		t.Fatalf("fmax above Nyquist should clamp, not fail: %v", err)
	}
}

func TestExtractFrameCount(t *testing.T) {
	e, err := NewExtractor(testParams())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}

	for _, samples := range []int{64, 640, 6400, 6431} {
		audio := make([]float32, samples)
		mel, err := e.Extract(audio)
		if err != nil {
			t.Fatalf("Extract failed for %d samples: %v", samples, err)
		}
		want := samples / 64
		if len(mel) != want {
			t.Errorf("%d samples: expected %d frames, got %d", samples, want, len(mel))
		}
		if len(mel[0]) != 8 {
			t.Errorf("expected 8 mel bins, got %d", len(mel[0]))
		}
	}
}

func TestExtractRejectsShortAudio(t *testing.T) {
	e, err := NewExtractor(testParams())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}
	if _, err := e.Extract(make([]float32, 63)); err == nil {
		t.Error("expected an error for audio shorter than one hop")
	}
}

func TestExtractSilenceHitsLogFloor(t *testing.T) {
	e, err := NewExtractor(testParams())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}

	mel, err := e.Extract(make([]float32, 640))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	want := float32(math.Log(1e-5))
	for f, frame := range mel {
		for m, v := range frame {
			if v != want {
				t.Fatalf("frame %d bin %d: silence should clamp to log floor %f, got %f", f, m, want, v)
			}
		}
	}
}

func TestExtractToneExcitesMatchingBand(t *testing.T) {
	e, err := NewExtractor(testParams())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}

	// a loud 1 kHz tone should put more energy somewhere than silence
	audio := make([]float32, 6400)
	for i := range audio {
		audio[i] = float32(0.8 * math.Sin(2*math.Pi*1000*float64(i)/16000))
	}
	mel, err := e.Extract(audio)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	floor := float32(math.Log(1e-5))
	mid := mel[len(mel)/2]
	var peak float32 = floor
	for _, v := range mid {
		if v > peak {
			peak = v
		}
	}
	if peak <= floor {
		t.Error("a loud tone should lift at least one band above the log floor")
	}
}

func TestExtractDeterministic(t *testing.T) {
	e, err := NewExtractor(testParams())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}
	audio := make([]float32, 1280)
	for i := range audio {
		audio[i] = float32(math.Sin(float64(i) / 7))
	}

	a, err := e.Extract(audio)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	b, err := e.Extract(audio)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for f := range a {
		for m := range a[f] {
			if a[f][m] != b[f][m] {
				t.Fatalf("frame %d bin %d differs across identical extractions", f, m)
			}
		}
	}
}

func TestAccessors(t *testing.T) {
	e, err := NewExtractor(testParams())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}
	if e.NumMels() != 8 {
		t.Errorf("expected 8 mel bands, got %d", e.NumMels())
	}
	if e.HopSize() != 64 {
		t.Errorf("expected hop size 64, got %d", e.HopSize())
	}
}

func TestMelScaleRoundTrip(t *testing.T) {
	for _, hz := range []float64{80, 440, 1000, 7600} {
		back := melToHz(hzToMel(hz))
		if math.Abs(back-hz) > 1e-6 {
			t.Errorf("hz %f round-tripped to %f", hz, back)
		}
	}
}
