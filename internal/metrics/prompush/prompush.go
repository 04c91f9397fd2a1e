// Package prompush implements a metrics backend that pushes to a Prometheus
// Pushgateway. Collectors live in a private registry; Flush pushes the whole
// registry, replacing the job's previous group.
package prompush

import (
	"errors"
	"fmt"

	"xmlbar/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend implements metrics.Backend for the Pushgateway.
type Backend struct {
	pusher *push.Pusher

	records   *prometheus.CounterVec
	batches   prometheus.Counter
	steps     *prometheus.CounterVec
	durations *prometheus.HistogramVec
	http      *prometheus.CounterVec
}

// NewBackend builds a backend pushing to url under the given job name.
// groupings are extra grouping labels (e.g. run_id).
func NewBackend(url, job string, groupings map[string]string) (*Backend, error) {
	if url == "" {
		return nil, errors.New("prompush: pushgateway url is empty")
	}
	if job == "" {
		job = "xmlbar"
	}

	b := &Backend{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Records processed, by outcome.",
		}, []string{"kind"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Record batches completed by workers.",
		}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline step executions.",
		}, []string{"step", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDurationSeconds,
			Help:    "Pipeline step duration.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"step", "status"}),
		http: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.HTTPRequestsTotal,
			Help: "HTTP input requests, by status.",
		}, []string{"status"}),
	}

	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{b.records, b.batches, b.steps, b.durations, b.http} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register: %w", err)
		}
	}

	b.pusher = push.New(url, job).Gatherer(reg)
	for k, v := range groupings {
		b.pusher = b.pusher.Grouping(k, v)
	}
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.RecordsTotal:
		if kind := labels["kind"]; kind != "" {
			b.records.WithLabelValues(kind).Add(delta)
		}
	case metrics.BatchesTotal:
		b.batches.Add(delta)
	case metrics.StepTotal:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.HTTPRequestsTotal:
		status := labels["status"]
		if status == "" {
			status = "unknown"
		}
		b.http.WithLabelValues(status).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDurationSeconds || value < 0 {
		return
	}
	b.durations.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current state of every collector.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

var _ metrics.Backend = (*Backend)(nil)
