package training

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/tsawler/go-vocoder/tensor"
)

// Dataset provides random access to waveform/mel-spectrogram pairs.
type Dataset interface {
	Len() int
	Get(idx int) (audio []float32, mel [][]float32, err error)
}

// Batch is one training or evaluation batch: waveforms stacked as
// (B, T) and their conditioning features as (B, frames, F), aligned so
// that T == frames * hop_size.
type Batch struct {
	Audio *tensor.Tensor
	Mels  *tensor.Tensor
}

// DataLoader iterates a Dataset in batches, collating every example to
// a fixed window. Next returns io.EOF once the epoch is exhausted;
// Reset starts the next epoch (reshuffling when enabled).
type DataLoader struct {
	dataset   Dataset
	batchSize int
	collater  *Collater
	shuffle   bool
	rng       *rand.Rand
	order     []int
	pos       int
}

// NewDataLoader creates a loader over the dataset. The rng drives
// shuffling and may be nil when shuffle is false. An evaluation
// collater (derived window) requires batch size one, since its windows
// vary per example.
func NewDataLoader(dataset Dataset, batchSize int, collater *Collater, shuffle bool, rng *rand.Rand) (*DataLoader, error) {
	if dataset == nil {
		return nil, fmt.Errorf("dataset is nil")
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}
	if collater == nil {
		return nil, fmt.Errorf("collater is nil")
	}
	if collater.BatchMaxSteps() == 0 && batchSize != 1 {
		return nil, fmt.Errorf("derived-window collation requires batch size 1, got %d", batchSize)
	}
	if shuffle && rng == nil {
		return nil, fmt.Errorf("shuffling requires a random source")
	}

	dl := &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		collater:  collater,
		shuffle:   shuffle,
		rng:       rng,
		order:     make([]int, dataset.Len()),
	}
	dl.Reset()
	return dl, nil
}

// Len returns the number of batches per epoch, counting a trailing
// partial batch.
func (dl *DataLoader) Len() int {
	n := dl.dataset.Len()
	return (n + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds the loader to the start of an epoch.
func (dl *DataLoader) Reset() {
	for i := range dl.order {
		dl.order[i] = i
	}
	if dl.shuffle {
		dl.rng.Shuffle(len(dl.order), func(i, j int) {
			dl.order[i], dl.order[j] = dl.order[j], dl.order[i]
		})
	}
	dl.pos = 0
}

// Next returns the next batch, or io.EOF when the epoch is exhausted.
func (dl *DataLoader) Next() (*Batch, error) {
	if dl.pos >= len(dl.order) {
		return nil, io.EOF
	}

	end := dl.pos + dl.batchSize
	if end > len(dl.order) {
		end = len(dl.order)
	}

	audios := make([][]float32, 0, end-dl.pos)
	mels := make([][][]float32, 0, end-dl.pos)
	for _, idx := range dl.order[dl.pos:end] {
		audio, mel, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("load example %d: %w", idx, err)
		}
		audio, mel, err = dl.collater.Collate(audio, mel)
		if err != nil {
			return nil, fmt.Errorf("collate example %d: %w", idx, err)
		}
		audios = append(audios, audio)
		mels = append(mels, mel)
	}
	dl.pos = end

	return buildBatch(audios, mels)
}

// buildBatch stacks collated examples into batch tensors. Every
// example must share the window shape; the collater guarantees this
// for fixed windows, and derived windows arrive one per batch.
func buildBatch(audios [][]float32, mels [][][]float32) (*Batch, error) {
	batch := len(audios)
	steps := len(audios[0])
	frames := len(mels[0])
	if frames == 0 {
		return nil, fmt.Errorf("batch has empty feature sequence")
	}
	numMels := len(mels[0][0])

	audioData := make([]float32, batch*steps)
	melData := make([]float32, batch*frames*numMels)
	for b := range audios {
		if len(audios[b]) != steps || len(mels[b]) != frames {
			return nil, fmt.Errorf("batch window mismatch: example %d has %d samples/%d frames, want %d/%d",
				b, len(audios[b]), len(mels[b]), steps, frames)
		}
		copy(audioData[b*steps:], audios[b])
		for f, frame := range mels[b] {
			if len(frame) != numMels {
				return nil, fmt.Errorf("example %d frame %d has %d bins, want %d", b, f, len(frame), numMels)
			}
			copy(melData[(b*frames+f)*numMels:], frame)
		}
	}

	audio, err := tensor.NewTensor([]int{batch, steps}, tensor.Float32, audioData)
	if err != nil {
		return nil, err
	}
	mel, err := tensor.NewTensor([]int{batch, frames, numMels}, tensor.Float32, melData)
	if err != nil {
		return nil, err
	}
	return &Batch{Audio: audio, Mels: mel}, nil
}
