package training

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// ProgressBar renders tqdm-style progress for the training loop. It
// tracks global steps against train_max_steps, so a resumed run starts
// partway along the bar.
type ProgressBar struct {
	description string
	total       int
	current     int
	startOffset int
	startTime   time.Time
	width       int
	out         io.Writer
	metrics     map[string]float64
}

// NewProgressBar creates a progress bar over [initial, total] steps.
func NewProgressBar(description string, total, initial int) *ProgressBar {
	return &ProgressBar{
		description: description,
		total:       total,
		current:     initial,
		startOffset: initial,
		startTime:   time.Now(),
		width:       40,
		out:         os.Stdout,
		metrics:     make(map[string]float64),
	}
}

// Update advances the bar by n steps.
func (pb *ProgressBar) Update(n int) {
	pb.current += n
	pb.render()
}

// SetMetrics replaces the metrics shown at the end of the line.
func (pb *ProgressBar) SetMetrics(metrics map[string]float64) {
	pb.metrics = metrics
	pb.render()
}

// Finish completes the bar and moves to a fresh line.
func (pb *ProgressBar) Finish() {
	pb.render()
	fmt.Fprintln(pb.out)
}

func (pb *ProgressBar) render() {
	percentage := float64(pb.current) / float64(pb.total)
	if percentage > 1.0 {
		percentage = 1.0
	}

	filled := int(percentage * float64(pb.width))
	if filled > pb.width {
		filled = pb.width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	var rate float64
	var eta time.Duration
	done := pb.current - pb.startOffset
	if done > 0 && elapsed > 0 {
		rate = float64(done) / elapsed.Seconds()
		remaining := pb.total - pb.current
		if remaining > 0 && rate > 0 {
			eta = time.Duration(float64(remaining)/rate) * time.Second
		}
	}

	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%d [%s<%s",
		pb.description,
		percentage*100,
		bar,
		pb.current,
		pb.total,
		formatDuration(elapsed),
		formatDuration(eta),
	)
	if rate > 0 {
		line += fmt.Sprintf(", %.2fit/s", rate)
	}

	// sorted so the line is stable across renders
	names := make([]string, 0, len(pb.metrics))
	for name := range pb.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		line += fmt.Sprintf(", %s=%.4f", name, pb.metrics[name])
	}
	line += "]"

	fmt.Fprint(pb.out, line)
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
