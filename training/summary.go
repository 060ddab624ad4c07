package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SummaryWriter receives flushed metric means, tagged with the global
// step and the phase ("train" or "eval") they belong to. Append-only;
// nothing in the trainer reads summaries back.
type SummaryWriter interface {
	Write(name string, value float32, step int, phase string) error
	Close() error
}

type summaryEvent struct {
	Time  time.Time `json:"time"`
	Step  int       `json:"step"`
	Phase string    `json:"phase"`
	Name  string    `json:"name"`
	Value float32   `json:"value"`
}

// JSONLSummaryWriter appends one JSON object per metric flush to an
// events file, one line per event.
type JSONLSummaryWriter struct {
	file *os.File
	enc  *json.Encoder
}

// NewJSONLSummaryWriter opens (or creates) events.jsonl under dir for
// appending.
func NewJSONLSummaryWriter(dir string) (*JSONLSummaryWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create summary directory: %w", err)
	}
	path := filepath.Join(dir, "events.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open summary file: %w", err)
	}
	return &JSONLSummaryWriter{file: file, enc: json.NewEncoder(file)}, nil
}

func (w *JSONLSummaryWriter) Write(name string, value float32, step int, phase string) error {
	return w.enc.Encode(summaryEvent{
		Time:  time.Now().UTC(),
		Step:  step,
		Phase: phase,
		Name:  name,
		Value: value,
	})
}

func (w *JSONLSummaryWriter) Close() error {
	return w.file.Close()
}
