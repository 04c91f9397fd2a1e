// Package datadog ships xmlbar metrics to Datadog.
//
// Counter increments and histogram samples are aggregated per series (metric
// plus tag set) and submitted by a background ticker and once more on Close.
// Histograms are reported as p50/p90/p95/p99/max/samples gauges.
package datadog

import (
	"context"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"xmlbar/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options configures NewBackend.
type Options struct {
	// JobName is sent as tag "job:<name>". Default "xmlbar".
	JobName string
	// Tags are added to every series, e.g. "team:data".
	Tags []string
	// FlushEvery is the submit interval. Default one minute.
	FlushEvery time.Duration

	// test seams
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter submitter
}

type submitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// series describes how one metrics name is reported: the Datadog metric name
// and the labels turned into tags, in order.
type series struct {
	metric string
	labels []string
}

var known = map[string]series{
	metrics.RecordsTotal:        {"xmlbar.records.total", []string{"kind"}},
	metrics.BatchesTotal:        {"xmlbar.batches.total", nil},
	metrics.StepTotal:           {"xmlbar.step.total", []string{"step", "status"}},
	metrics.StepDurationSeconds: {"xmlbar.step.duration_seconds", []string{"step", "status"}},
	metrics.HTTPRequestsTotal:   {"xmlbar.http.requests.total", []string{"status"}},
}

// bucket accumulates one series between flushes.
type bucket struct {
	metric  string
	tags    []string
	sum     float64
	samples []float64
}

// Backend implements metrics.Backend.
type Backend struct {
	api        submitter
	ctx        context.Context
	baseTags   []string
	flushEvery time.Duration
	now        func() time.Time
	newTicker  func(d time.Duration) *time.Ticker

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	counters map[string]*bucket
	hists    map[string]*bucket
}

// NewBackend starts a backend. Credentials and site come from the DD_*
// environment variables read by the Datadog client; submit errors are
// returned by Flush and Close.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if opts.JobName == "" {
		opts.JobName = "xmlbar"
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = time.Minute
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.newTicker == nil {
		opts.newTicker = time.NewTicker
	}
	if opts.submitter == nil {
		opts.submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        opts.submitter,
		ctx:        dd.NewDefaultContext(parent),
		baseTags:   append([]string{envTag(), "job:" + opts.JobName}, opts.Tags...),
		flushEvery: opts.FlushEvery,
		now:        opts.now,
		newTicker:  opts.newTicker,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		counters:   map[string]*bucket{},
		hists:      map[string]*bucket{},
	}
	go b.run()
	return b, nil
}

// envTag is "env:" plus ENV, else DD_ENV, else "unknown".
func envTag() string {
	for _, k := range []string{"ENV", "DD_ENV"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return "env:" + v
		}
	}
	return "env:unknown"
}

func (b *Backend) run() {
	defer close(b.done)
	t := b.newTicker(b.flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stop:
			return
		}
	}
}

// Close stops the ticker and flushes what is buffered. It is safe to call
// more than once.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stop)
		<-b.done
	})
	return b.Flush()
}

// IncCounter adds delta to the series for name and labels. Unknown names and
// non-positive deltas are ignored; missing labels are tagged "unknown".
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	b.add(b.counters, name, labels, func(bk *bucket) { bk.sum += delta })
}

// ObserveHistogram records one sample. Unknown names and negative values are
// ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	b.add(b.hists, name, labels, func(bk *bucket) { bk.samples = append(bk.samples, value) })
}

func (b *Backend) add(into map[string]*bucket, name string, labels metrics.Labels, update func(*bucket)) {
	s, ok := known[name]
	if !ok {
		return
	}
	tags := make([]string, len(s.labels))
	for i, l := range s.labels {
		v := labels[l]
		if v == "" {
			v = "unknown"
		}
		tags[i] = l + ":" + v
	}
	key := s.metric + "|" + strings.Join(tags, ",")

	b.mu.Lock()
	defer b.mu.Unlock()
	bk := into[key]
	if bk == nil {
		bk = &bucket{metric: s.metric, tags: tags}
		into[key] = bk
	}
	update(bk)
}

// Flush submits and clears the buffered series. Buffers are cleared even when
// the submit fails; nothing is sent when they are empty.
func (b *Backend) Flush() error {
	b.mu.Lock()
	counters, hists := b.counters, b.hists
	b.counters, b.hists = map[string]*bucket{}, map[string]*bucket{}
	b.mu.Unlock()

	out := b.series(counters, hists, b.now().Unix())
	if len(out) == 0 {
		return nil
	}
	_, _, err := b.api.SubmitMetrics(b.ctx, datadogV2.MetricPayload{Series: out}, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

func (b *Backend) series(counters, hists map[string]*bucket, ts int64) []datadogV2.MetricSeries {
	var out []datadogV2.MetricSeries
	emit := func(kind datadogV2.MetricIntakeType, metric string, v float64, tags []string) {
		out = append(out, datadogV2.MetricSeries{
			Metric: metric,
			Type:   kind.Ptr(),
			Points: []datadogV2.MetricPoint{{Timestamp: dd.PtrInt64(ts), Value: dd.PtrFloat64(v)}},
			Tags:   append(append([]string(nil), b.baseTags...), tags...),
		})
	}

	for _, bk := range counters {
		emit(datadogV2.METRICINTAKETYPE_COUNT, bk.metric, bk.sum, bk.tags)
	}
	for _, bk := range hists {
		if len(bk.samples) == 0 {
			continue
		}
		sorted := append([]float64(nil), bk.samples...)
		sort.Float64s(sorted)
		for _, q := range []struct {
			suffix string
			v      float64
		}{
			{".p50", quantile(sorted, 0.50)},
			{".p90", quantile(sorted, 0.90)},
			{".p95", quantile(sorted, 0.95)},
			{".p99", quantile(sorted, 0.99)},
			{".max", sorted[len(sorted)-1]},
			{".samples", float64(len(sorted))},
		} {
			emit(datadogV2.METRICINTAKETYPE_GAUGE, bk.metric+q.suffix, q.v, bk.tags)
		}
	}
	return out
}

// quantile is the nearest-rank q-quantile of sorted (0 for an empty slice).
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

var _ metrics.Backend = (*Backend)(nil)
