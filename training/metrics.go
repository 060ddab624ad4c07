package training

import (
	"fmt"
)

// MetricNames lists every loss tracked by the trainer. Train and eval
// phases each keep an independent set under these names.
var MetricNames = []string{
	"adversarial_loss",
	"fm_loss",
	"gen_loss",
	"real_loss",
	"fake_loss",
	"dis_loss",
}

type runningMean struct {
	sum   float64
	count int
}

// Metrics aggregates named running means over scalar loss values.
// Accumulators grow with Update and hold their value until Reset, which
// the trainer calls at every logging and evaluation boundary.
type Metrics struct {
	means map[string]*runningMean
	names []string
}

// NewMetrics registers the given metric names. Updating any other name
// afterwards is a programming error and panics.
func NewMetrics(names []string) *Metrics {
	m := &Metrics{
		means: make(map[string]*runningMean, len(names)),
		names: append([]string(nil), names...),
	}
	for _, name := range names {
		m.means[name] = &runningMean{}
	}
	return m
}

// Update folds a scalar value into the named running mean.
func (m *Metrics) Update(name string, value float32) {
	rm, ok := m.means[name]
	if !ok {
		panic(fmt.Sprintf("metrics: update of unregistered metric %q", name))
	}
	rm.sum += float64(value)
	rm.count++
}

// Result returns the current mean of the named metric, zero when no
// values have been recorded since the last reset.
func (m *Metrics) Result(name string) float32 {
	rm, ok := m.means[name]
	if !ok {
		panic(fmt.Sprintf("metrics: result of unregistered metric %q", name))
	}
	if rm.count == 0 {
		return 0
	}
	return float32(rm.sum / float64(rm.count))
}

// Reset zeroes the named accumulator.
func (m *Metrics) Reset(name string) {
	rm, ok := m.means[name]
	if !ok {
		panic(fmt.Sprintf("metrics: reset of unregistered metric %q", name))
	}
	rm.sum = 0
	rm.count = 0
}

// ResetAll zeroes every accumulator.
func (m *Metrics) ResetAll() {
	for _, rm := range m.means {
		rm.sum = 0
		rm.count = 0
	}
}

// Names returns the registered metric names in registration order.
func (m *Metrics) Names() []string {
	return m.names
}
