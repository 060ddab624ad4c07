package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Checkpoint represents a complete training snapshot: both networks'
// weights, both optimizers' state, and the step/epoch counters. Loading
// one fully reinitializes the trainer.
type Checkpoint struct {
	Generator     []WeightTensor `json:"generator"`
	Discriminator []WeightTensor `json:"discriminator"`

	GenOptimizer *OptimizerState `json:"generator_optimizer,omitempty"`
	DisOptimizer *OptimizerState `json:"discriminator_optimizer,omitempty"`

	TrainingState TrainingState `json:"training_state"`

	Metadata Metadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Type  string    `json:"type"` // "weight", "bias"
}

// TrainingState captures the trainer's progress counters
type TrainingState struct {
	Steps  int `json:"steps"`
	Epochs int `json:"epochs"`
}

// OptimizerState captures optimizer-specific state (moment accumulators etc.)
type OptimizerState struct {
	Type         string            `json:"type"` // "Adam"
	LearningRate float64           `json:"learning_rate"`
	StepCount    uint64            `json:"step_count"`
	LossScale    float64           `json:"loss_scale,omitempty"`
	StateData    []OptimizerTensor `json:"state_data"`
}

// OptimizerTensor represents one optimizer state tensor
type OptimizerTensor struct {
	Name      string    `json:"name"`
	Shape     []int     `json:"shape"`
	Data      []float32 `json:"data"`
	StateType string    `json:"state_type"` // "m", "v"
}

// Metadata contains checkpoint bookkeeping
type Metadata struct {
	Version   string    `json:"version"`
	Framework string    `json:"framework"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager owns checkpoint persistence for one output directory. It
// writes atomically (temp file plus rename, so a checkpoint is either
// complete or absent) and evicts the oldest files beyond MaxToKeep.
type Manager struct {
	dir       string
	maxToKeep int
	kept      []string
}

// NewManager creates the checkpoint directory if needed and seeds the
// rotation list from checkpoints already present, oldest first.
func NewManager(dir string, maxToKeep int) (*Manager, error) {
	if maxToKeep <= 0 {
		return nil, fmt.Errorf("max checkpoints to keep must be positive, got %d", maxToKeep)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory %s: %w", dir, err)
	}

	existing, err := filepath.Glob(filepath.Join(dir, "checkpoint-*steps.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkpoint directory %s: %w", dir, err)
	}
	sort.Slice(existing, func(i, j int) bool {
		return stepsFromPath(existing[i]) < stepsFromPath(existing[j])
	})

	return &Manager{
		dir:       dir,
		maxToKeep: maxToKeep,
		kept:      existing,
	}, nil
}

func stepsFromPath(path string) int {
	var steps int
	fmt.Sscanf(filepath.Base(path), "checkpoint-%dsteps.json", &steps)
	return steps
}

// Save persists a checkpoint and returns its path. The write is atomic
// and the oldest checkpoints beyond the retention limit are removed.
func (m *Manager) Save(checkpoint *Checkpoint) (string, error) {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-vocoder"
		checkpoint.Metadata.Version = "1.0.0"
	}
	checkpoint.Metadata.CreatedAt = time.Now()

	path := filepath.Join(m.dir, fmt.Sprintf("checkpoint-%dsteps.json", checkpoint.TrainingState.Steps))

	tmp, err := os.CreateTemp(m.dir, ".checkpoint-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	tmpPath := tmp.Name()

	encoder := json.NewEncoder(tmp)
	if err := encoder.Encode(checkpoint); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to finish checkpoint write: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move checkpoint into place: %w", err)
	}

	m.remember(path)
	return path, nil
}

func (m *Manager) remember(path string) {
	for _, kept := range m.kept {
		if kept == path {
			return // overwrite of an existing step count
		}
	}
	m.kept = append(m.kept, path)
	for len(m.kept) > m.maxToKeep {
		oldest := m.kept[0]
		m.kept = m.kept[1:]
		if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
			// Rotation failure is not worth failing a successful save.
			continue
		}
	}
}

// Load reads a checkpoint from an explicit path.
func (m *Manager) Load(path string) (*Checkpoint, error) {
	return Load(path)
}

// Load reads a checkpoint file. Errors always carry the attempted path.
func Load(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint %s: %w", path, err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}

	return &checkpoint, nil
}

// Latest returns the newest retained checkpoint path, if any.
func (m *Manager) Latest() (string, bool) {
	if len(m.kept) == 0 {
		return "", false
	}
	return m.kept[len(m.kept)-1], true
}

// Kept returns the retained checkpoint paths, oldest first.
func (m *Manager) Kept() []string {
	return append([]string(nil), m.kept...)
}
