package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep/wav"
	"github.com/mewkiz/flac"
)

// readAudio decodes a mono sample vector from a WAV or FLAC file,
// dispatching on the file extension. Multi-channel files contribute
// their first channel only.
func readAudio(path string) ([]float32, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return readWAV(path)
	case ".flac":
		return readFLAC(path)
	default:
		return nil, fmt.Errorf("unsupported audio file %s: only .wav and .flac are supported", path)
	}
}

func readWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stream, _, err := wav.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode wav %s: %w", path, err)
	}
	defer stream.Close()

	out := make([]float32, 0, stream.Len())
	buf := make([][2]float64, 512)
	for {
		n, ok := stream.Stream(buf)
		for i := 0; i < n; i++ {
			out = append(out, float32(buf[i][0]))
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("read wav %s: %w", path, err)
	}
	return out, nil
}

func readFLAC(path string) ([]float32, error) {
	stream, err := flac.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open flac %s: %w", path, err)
	}
	defer stream.Close()

	scale := float32(int64(1) << (stream.Info.BitsPerSample - 1))
	out := make([]float32, 0, stream.Info.NSamples)
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode flac %s: %w", path, err)
		}
		for _, sample := range frame.Subframes[0].Samples {
			out = append(out, float32(sample)/scale)
		}
	}
	return out, nil
}

// audioNumSamples reads the sample count from the file header without
// decoding the audio, for cheap short-sample filtering at scan time.
func audioNumSamples(path string) (int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		stream, _, err := wav.Decode(f)
		if err != nil {
			return 0, fmt.Errorf("decode wav %s: %w", path, err)
		}
		defer stream.Close()
		return stream.Len(), nil
	case ".flac":
		stream, err := flac.Open(path)
		if err != nil {
			return 0, fmt.Errorf("open flac %s: %w", path, err)
		}
		defer stream.Close()
		return int(stream.Info.NSamples), nil
	default:
		return 0, fmt.Errorf("unsupported audio file %s", path)
	}
}
