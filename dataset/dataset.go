// Package dataset provides the waveform/mel-spectrogram datasets that
// feed the training loop: a dump-directory scanner over audio files
// and a kaldi-style wav.scp index reader. Features are extracted on
// the fly and optionally cached in memory.
package dataset

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/tsawler/go-vocoder/melspec"
)

type entry struct {
	id   string
	path string
}

type example struct {
	audio []float32
	mel   [][]float32
}

// melDataset is the shared core of both dataset flavors: a fixed list
// of audio files, decoded and featurized lazily.
type melDataset struct {
	entries    []entry
	extractor  *melspec.Extractor
	allowCache bool
	cache      []*example
}

func newMelDataset(entries []entry, extractor *melspec.Extractor, melLengthThreshold int, allowCache bool) (*melDataset, error) {
	if extractor == nil {
		return nil, fmt.Errorf("feature extractor is required")
	}

	if melLengthThreshold > 0 {
		kept := entries[:0]
		dropped := 0
		minSamples := melLengthThreshold * extractor.HopSize()
		for _, e := range entries {
			n, err := audioNumSamples(e.path)
			if err != nil {
				return nil, err
			}
			if n < minSamples {
				dropped++
				continue
			}
			kept = append(kept, e)
		}
		if dropped > 0 {
			logrus.Infof("dropped %d examples shorter than %d frames", dropped, melLengthThreshold)
		}
		entries = kept
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}

	ds := &melDataset{
		entries:    entries,
		extractor:  extractor,
		allowCache: allowCache,
	}
	if allowCache {
		ds.cache = make([]*example, len(entries))
	}
	return ds, nil
}

func (d *melDataset) Len() int {
	return len(d.entries)
}

// ID returns the utterance identifier of the idx-th example.
func (d *melDataset) ID(idx int) string {
	return d.entries[idx].id
}

func (d *melDataset) Get(idx int) ([]float32, [][]float32, error) {
	if idx < 0 || idx >= len(d.entries) {
		return nil, nil, fmt.Errorf("example index %d out of range [0, %d)", idx, len(d.entries))
	}
	if d.allowCache && d.cache[idx] != nil {
		return d.cache[idx].audio, d.cache[idx].mel, nil
	}

	e := d.entries[idx]
	audio, err := readAudio(e.path)
	if err != nil {
		return nil, nil, fmt.Errorf("example %s: %w", e.id, err)
	}
	mel, err := d.extractor.Extract(audio)
	if err != nil {
		return nil, nil, fmt.Errorf("example %s: %w", e.id, err)
	}

	if d.allowCache {
		d.cache[idx] = &example{audio: audio, mel: mel}
	}
	return audio, mel, nil
}

// AudioMelDataset serves examples from a dump directory of audio
// files, one example per file, ordered by filename.
type AudioMelDataset struct {
	*melDataset
}

// NewAudioMelDataset scans rootDir for files of the given format
// ("wav" or "flac"). Examples whose feature sequence would be shorter
// than melLengthThreshold frames are dropped at scan time.
func NewAudioMelDataset(rootDir, format string, extractor *melspec.Extractor, melLengthThreshold int, allowCache bool) (*AudioMelDataset, error) {
	if format != "wav" && format != "flac" {
		return nil, fmt.Errorf("unsupported format %q: only wav and flac are supported", format)
	}

	paths, err := filepath.Glob(filepath.Join(rootDir, "*."+format))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", rootDir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no *.%s files found under %s", format, rootDir)
	}
	sort.Strings(paths)

	entries := make([]entry, len(paths))
	for i, p := range paths {
		base := filepath.Base(p)
		entries[i] = entry{id: base[:len(base)-len(filepath.Ext(base))], path: p}
	}

	core, err := newMelDataset(entries, extractor, melLengthThreshold, allowCache)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", rootDir, err)
	}
	return &AudioMelDataset{melDataset: core}, nil
}
