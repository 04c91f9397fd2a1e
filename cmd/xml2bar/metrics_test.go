package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"xmlbar/internal/config"
	"xmlbar/internal/metrics"
	"xmlbar/internal/metrics/datadog"
)

// fakeBackend counts flushes and closes.
type fakeBackend struct {
	flushes atomic.Int64
	closes  atomic.Int64
}

func (b *fakeBackend) IncCounter(string, float64, metrics.Labels)       {}
func (b *fakeBackend) ObserveHistogram(string, float64, metrics.Labels) {}
func (b *fakeBackend) Flush() error                                     { b.flushes.Add(1); return nil }
func (b *fakeBackend) Close() error                                     { b.closes.Add(1); return nil }

// The tests below swap package-level seams and must not run in parallel.

func TestInitMetrics_None(t *testing.T) {
	oldSet := setMetricsBackend
	defer func() { setMetricsBackend = oldSet }()
	setMetricsBackend = func(metrics.Backend) { t.Fatalf("setMetricsBackend must not be called") }

	cleanup, err := initMetrics(context.Background(), config.MetricsConfig{Backend: "none"}, zap.NewNop())
	if err != nil || cleanup == nil {
		t.Fatalf("cleanup nil=%v err=%v", cleanup == nil, err)
	}
	cleanup()
}

// TestInitMetrics_Datadog wires the backend and closes it once.
func TestInitMetrics_Datadog(t *testing.T) {
	b := &fakeBackend{}
	var gotOpts datadog.Options
	var sets atomic.Int64

	oldNew, oldSet := newDatadogBackend, setMetricsBackend
	defer func() { newDatadogBackend, setMetricsBackend = oldNew, oldSet }()
	newDatadogBackend = func(_ context.Context, opts datadog.Options) (metrics.Backend, error) {
		gotOpts = opts
		return b, nil
	}
	setMetricsBackend = func(metrics.Backend) { sets.Add(1) }

	cleanup, err := initMetrics(context.Background(), config.MetricsConfig{Backend: "datadog", Job: "j", Tags: []string{"team:x"}}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	cleanup()

	if gotOpts.JobName != "j" || len(gotOpts.Tags) != 1 {
		t.Fatalf("opts=%+v", gotOpts)
	}
	if b.closes.Load() != 1 || b.flushes.Load() != 0 {
		t.Fatalf("closes=%d flushes=%d", b.closes.Load(), b.flushes.Load())
	}
	if sets.Load() != 2 {
		t.Fatalf("set calls=%d, want install and reset", sets.Load())
	}
}

// TestInitMetrics_Pushgateway flushes on cleanup and needs a URL.
func TestInitMetrics_Pushgateway(t *testing.T) {
	b := &fakeBackend{}
	oldNew, oldSet := newPushBackend, setMetricsBackend
	defer func() { newPushBackend, setMetricsBackend = oldNew, oldSet }()
	newPushBackend = func(url, job string, _ map[string]string) (metrics.Backend, error) {
		if url != "http://gw" || job != "j" {
			t.Fatalf("url=%q job=%q", url, job)
		}
		return b, nil
	}
	setMetricsBackend = func(metrics.Backend) {}

	if _, err := initMetrics(context.Background(), config.MetricsConfig{Backend: "pushgateway"}, zap.NewNop()); err == nil {
		t.Fatalf("expected error without URL")
	}

	cleanup, err := initMetrics(context.Background(), config.MetricsConfig{Backend: "pushgateway", PushgatewayURL: "http://gw", Job: "j"}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	cleanup()
	if b.flushes.Load() != 1 {
		t.Fatalf("flushes=%d, want 1", b.flushes.Load())
	}
}

// TestInitMetrics_ConstructionFailure keeps metrics disabled without failing.
func TestInitMetrics_ConstructionFailure(t *testing.T) {
	oldNew, oldSet := newDatadogBackend, setMetricsBackend
	defer func() { newDatadogBackend, setMetricsBackend = oldNew, oldSet }()
	newDatadogBackend = func(context.Context, datadog.Options) (metrics.Backend, error) {
		return nil, errors.New("no api key")
	}
	setMetricsBackend = func(metrics.Backend) { t.Fatalf("must not install a backend") }

	cleanup, err := initMetrics(context.Background(), config.MetricsConfig{Backend: "datadog"}, zap.NewNop())
	if err != nil || cleanup == nil {
		t.Fatalf("cleanup nil=%v err=%v", cleanup == nil, err)
	}
	cleanup()
}
