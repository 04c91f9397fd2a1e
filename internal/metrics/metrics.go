// Package metrics is a small facade so the pipeline can report counters and
// durations without knowing which backend, if any, is configured.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by all backends.
const (
	RecordsTotal        = "xmlbar_records_total"         // labels: kind=extracted|empty|skipped
	BatchesTotal        = "xmlbar_batches_total"         // no labels
	StepTotal           = "xmlbar_step_total"            // labels: step, status
	StepDurationSeconds = "xmlbar_step_duration_seconds" // labels: step, status
	HTTPRequestsTotal   = "xmlbar_http_requests_total"   // labels: status
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric updates. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b process-wide. nil restores the no-op backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush pushes buffered metrics, if the backend buffers.
func Flush() error { return current().Flush() }

// ObserveStep counts one execution of a pipeline step and records how long it
// took.
func ObserveStep(step, status string, start time.Time) {
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, time.Since(start).Seconds(), l)
}

// StatusOf maps an error to the status label used by ObserveStep.
func StatusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
