package training

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"testing"
)

// memoryDataset serves synthetic examples whose sample values encode
// the example index, so batches are traceable back to their source.
type memoryDataset struct {
	examples int
	frames   int
	hop      int
	numMels  int
	failAt   int
}

func (d *memoryDataset) Len() int {
	return d.examples
}

func (d *memoryDataset) Get(idx int) ([]float32, [][]float32, error) {
	if idx == d.failAt {
		return nil, nil, fmt.Errorf("example %d unreadable", idx)
	}
	audio := make([]float32, d.frames*d.hop)
	for i := range audio {
		audio[i] = float32(idx)
	}
	mel := make([][]float32, d.frames)
	for f := range mel {
		mel[f] = make([]float32, d.numMels)
		for j := range mel[f] {
			mel[f][j] = float32(idx)
		}
	}
	return audio, mel, nil
}

func newMemoryDataset(examples int) *memoryDataset {
	return &memoryDataset{examples: examples, frames: 20, hop: 4, numMels: 3, failAt: -1}
}

func trainCollater(t *testing.T, windowFrames int) *Collater {
	t.Helper()
	c, err := NewCollater(windowFrames*4, 4, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("NewCollater failed: %v", err)
	}
	return c
}

func TestNewDataLoaderValidation(t *testing.T) {
	ds := newMemoryDataset(4)
	c := trainCollater(t, 8)

	if _, err := NewDataLoader(nil, 2, c, false, nil); err == nil {
		t.Error("expected an error for a nil dataset")
	}
	if _, err := NewDataLoader(ds, 0, c, false, nil); err == nil {
		t.Error("expected an error for batch size 0")
	}
	if _, err := NewDataLoader(ds, 2, nil, false, nil); err == nil {
		t.Error("expected an error for a nil collater")
	}
	if _, err := NewDataLoader(ds, 2, c, true, nil); err == nil {
		t.Error("expected an error for shuffling without a random source")
	}

	evalC, err := NewCollater(0, 4, nil)
	if err != nil {
		t.Fatalf("NewCollater failed: %v", err)
	}
	if _, err := NewDataLoader(ds, 2, evalC, false, nil); err == nil {
		t.Error("expected an error for a derived-window collater with batch size > 1")
	}
	if _, err := NewDataLoader(ds, 1, evalC, false, nil); err != nil {
		t.Errorf("derived-window collation with batch size 1 should work: %v", err)
	}
}

func TestDataLoaderBatchShapes(t *testing.T) {
	ds := newMemoryDataset(5)
	dl, err := NewDataLoader(ds, 2, trainCollater(t, 8), false, nil)
	if err != nil {
		t.Fatalf("NewDataLoader failed: %v", err)
	}

	if dl.Len() != 3 {
		t.Errorf("expected 3 batches for 5 examples at batch size 2, got %d", dl.Len())
	}

	batch, err := dl.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	audioShape := batch.Audio.Size()
	melShape := batch.Mels.Size()
	if len(audioShape) != 2 || audioShape[0] != 2 || audioShape[1] != 32 {
		t.Errorf("expected audio shape [2 32], got %v", audioShape)
	}
	if len(melShape) != 3 || melShape[0] != 2 || melShape[1] != 8 || melShape[2] != 3 {
		t.Errorf("expected mel shape [2 8 3], got %v", melShape)
	}

	// waveform and features stay aligned per batch row
	audioData, _ := batch.Audio.GetFloat32Data()
	melData, _ := batch.Mels.GetFloat32Data()
	if audioData[0] != 0 || melData[0] != 0 {
		t.Errorf("first row should come from example 0, got audio %f mel %f", audioData[0], melData[0])
	}
	if audioData[32] != 1 || melData[8*3] != 1 {
		t.Errorf("second row should come from example 1, got audio %f mel %f", audioData[32], melData[8*3])
	}
}

func TestDataLoaderEpoch(t *testing.T) {
	ds := newMemoryDataset(5)
	dl, err := NewDataLoader(ds, 2, trainCollater(t, 8), false, nil)
	if err != nil {
		t.Fatalf("NewDataLoader failed: %v", err)
	}

	var rows int
	var batches int
	for {
		batch, err := dl.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		batches++
		rows += batch.Audio.Size()[0]
	}
	if batches != 3 {
		t.Errorf("expected 3 batches, got %d", batches)
	}
	if rows != 5 {
		t.Errorf("expected all 5 examples exactly once, got %d rows", rows)
	}
	// final partial batch carried 1 example

	if _, err := dl.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("exhausted loader should keep returning io.EOF, got %v", err)
	}

	dl.Reset()
	if _, err := dl.Next(); err != nil {
		t.Errorf("Next after Reset failed: %v", err)
	}
}

func TestDataLoaderShuffleReproducible(t *testing.T) {
	ds := newMemoryDataset(8)

	firstRows := func(seed int64) []float32 {
		dl, err := NewDataLoader(ds, 1, trainCollater(t, 8), true, rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatalf("NewDataLoader failed: %v", err)
		}
		var ids []float32
		for {
			batch, err := dl.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			data, _ := batch.Audio.GetFloat32Data()
			ids = append(ids, data[0])
		}
		return ids
	}

	a, b := firstRows(11), firstRows(11)
	if len(a) != 8 || len(b) != 8 {
		t.Fatalf("expected 8 rows per epoch, got %d and %d", len(a), len(b))
	}
	seen := make(map[float32]bool, 8)
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same seed should visit examples in the same order")
		}
		seen[a[i]] = true
	}
	if len(seen) != 8 {
		t.Errorf("shuffle should visit every example exactly once, saw %d distinct", len(seen))
	}
}

func TestDataLoaderPropagatesGetErrors(t *testing.T) {
	ds := newMemoryDataset(3)
	ds.failAt = 1
	dl, err := NewDataLoader(ds, 3, trainCollater(t, 8), false, nil)
	if err != nil {
		t.Fatalf("NewDataLoader failed: %v", err)
	}
	if _, err := dl.Next(); err == nil {
		t.Error("expected a dataset read error to surface")
	}
}
