// Package export writes the intermediate evaluation artifacts: a
// stacked ground-truth/generated waveform plot and PCM16 audio renders
// of both signals.
package export

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

const (
	plotWidth   = 800
	panelHeight = 160
	panelGap    = 8
)

// ArtifactExporter writes comparison artifacts under
// <outdir>/predictions/<steps>steps/: <idx>.png with both waveforms
// plotted, plus <idx>_ref.wav and <idx>_gen.wav.
type ArtifactExporter struct {
	outdir string
}

func NewArtifactExporter(outdir string) *ArtifactExporter {
	return &ArtifactExporter{outdir: outdir}
}

// Export renders one ground-truth/generated pair. Samples are clipped
// to [-1, 1] before the audio render.
func (e *ArtifactExporter) Export(groundTruth, generated []float32, steps, index, samplingRate int) error {
	dir := filepath.Join(e.outdir, "predictions", fmt.Sprintf("%dsteps", steps))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prediction directory: %w", err)
	}

	pngPath := filepath.Join(dir, fmt.Sprintf("%d.png", index))
	if err := writeComparisonPlot(pngPath, groundTruth, generated); err != nil {
		return fmt.Errorf("plot %s: %w", pngPath, err)
	}

	refPath := filepath.Join(dir, fmt.Sprintf("%d_ref.wav", index))
	if err := writeWAV(refPath, clip(groundTruth), samplingRate); err != nil {
		return fmt.Errorf("write %s: %w", refPath, err)
	}
	genPath := filepath.Join(dir, fmt.Sprintf("%d_gen.wav", index))
	if err := writeWAV(genPath, clip(generated), samplingRate); err != nil {
		return fmt.Errorf("write %s: %w", genPath, err)
	}
	return nil
}

func clip(samples []float32) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		switch {
		case s > 1:
			out[i] = 1
		case s < -1:
			out[i] = -1
		default:
			out[i] = s
		}
	}
	return out
}

// writeComparisonPlot draws the two waveforms as min/max envelopes in
// stacked panels, ground truth on top.
func writeComparisonPlot(path string, groundTruth, generated []float32) error {
	height := 2*panelHeight + panelGap
	img := image.NewRGBA(image.Rect(0, 0, plotWidth, height))
	for y := 0; y < height; y++ {
		for x := 0; x < plotWidth; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	drawWaveform(img, groundTruth, 0, color.RGBA{R: 31, G: 119, B: 180, A: 255})
	drawWaveform(img, generated, panelHeight+panelGap, color.RGBA{R: 255, G: 127, B: 14, A: 255})

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func drawWaveform(img *image.RGBA, samples []float32, top int, col color.RGBA) {
	if len(samples) == 0 {
		return
	}
	mid := top + panelHeight/2
	// midline
	for x := 0; x < plotWidth; x++ {
		img.SetRGBA(x, mid, color.RGBA{R: 220, G: 220, B: 220, A: 255})
	}

	perCol := float64(len(samples)) / float64(plotWidth)
	for x := 0; x < plotWidth; x++ {
		lo := int(float64(x) * perCol)
		hi := int(float64(x+1) * perCol)
		if hi <= lo {
			hi = lo + 1
		}
		if hi > len(samples) {
			hi = len(samples)
		}
		minV, maxV := samples[lo], samples[lo]
		for _, s := range samples[lo:hi] {
			if s < minV {
				minV = s
			}
			if s > maxV {
				maxV = s
			}
		}
		yTop := sampleToY(maxV, top)
		yBot := sampleToY(minV, top)
		for y := yTop; y <= yBot; y++ {
			img.SetRGBA(x, y, col)
		}
	}
}

func sampleToY(s float32, top int) int {
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	y := top + int((1-float64(s))*float64(panelHeight-1)/2)
	if y < top {
		y = top
	}
	if y > top+panelHeight-1 {
		y = top + panelHeight - 1
	}
	return y
}

// sliceStreamer adapts a mono sample slice to the beep streaming
// interface for WAV encoding.
type sliceStreamer struct {
	samples []float32
	pos     int
}

func (s *sliceStreamer) Stream(out [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := 0
	for ; n < len(out) && s.pos < len(s.samples); n++ {
		v := float64(s.samples[s.pos])
		out[n][0] = v
		out[n][1] = v
		s.pos++
	}
	return n, true
}

func (s *sliceStreamer) Err() error {
	return nil
}

func writeWAV(path string, samples []float32, samplingRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(samplingRate),
		NumChannels: 1,
		Precision:   2, // PCM16
	}
	if err := wav.Encode(f, &sliceStreamer{samples: samples}, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
