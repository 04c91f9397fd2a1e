// Package pipeline runs one extraction: input documents are streamed into
// record fragments, extracted by the worker pool and written to the sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xmlbar/internal/config"
	"xmlbar/internal/engine"
	"xmlbar/internal/extract"
	"xmlbar/internal/metrics"
	"xmlbar/internal/output"
	"xmlbar/internal/storage"
	"xmlbar/internal/template"
	"xmlbar/internal/xmlstream"
)

// Error kinds counted in Summary.Errors.
const (
	KindFragmentParse = "fragment_parse"
	KindChildElement  = "child_element"
	KindWorker        = "worker"
)

// Runner holds the collaborators of a run. The zero value is usable.
type Runner struct {
	Logger     *zap.Logger
	Stdin      io.Reader
	Stdout     io.Writer // target for Output "-"
	HTTPClient *http.Client

	// NewStore opens database sinks; nil uses storage.New.
	NewStore func(ctx context.Context, cfg storage.Config) (storage.Store, error)
	// NewRunID names the run; nil uses a random UUID.
	NewRunID func() string
	// WrapWork, when set, wraps every worker's extraction function.
	WrapWork func(engine.WorkFunc) engine.WorkFunc
}

// Summary reports a finished (or aborted) run.
type Summary struct {
	RunID     string
	Records   int // records read from the input
	Extracted int // non-empty units written
	Empty     int // records that produced no output
	Skipped   int // records dropped because extraction failed
	Errors    map[string]int
	Elapsed   time.Duration
}

// Run executes cfg. cfg is expected to have passed config.Validate.
//
// Template and selector problems are returned before any input is read, as
// *template.Error or *extract.SelectorError. Per-record failures are counted
// and skipped unless cfg.OnError is abort, in which case the first one is
// returned as an *engine.RecordError. The Summary is filled in either way.
func (r *Runner) Run(ctx context.Context, cfg config.Config) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: r.runID(), Errors: map[string]int{}}
	err := r.run(ctx, cfg, &sum, start)
	sum.Elapsed = time.Since(start)
	return sum, err
}

func (r *Runner) run(ctx context.Context, cfg config.Config, sum *Summary, start time.Time) error {
	logger := r.logger().With(zap.String("run_id", sum.RunID))

	stepStart := time.Now()
	tpl, err := template.Load(cfg.Template)
	metrics.ObserveStep("load_template", metrics.StatusOf(err), stepStart)
	if err != nil {
		return err
	}

	opts, err := extractOptions(cfg)
	if err != nil {
		return err
	}
	// Compile once up front so selector errors surface before any I/O.
	if _, err := extract.New(tpl, opts); err != nil {
		return err
	}
	logger.Info("stage done",
		zap.String("stage", "load_template"),
		zap.String("root_tag", tpl.RootTag),
		zap.Int("depth", tpl.Root.Depth()),
		zap.Duration("duration", time.Since(stepStart).Truncate(time.Millisecond)))

	sources, err := xmlstream.Sources(cfg.Input)
	if err != nil {
		return err
	}

	w, closeSink, err := r.openSink(ctx, cfg, tpl, sum.RunID)
	if err != nil {
		return err
	}

	runErr := r.stream(ctx, cfg, tpl, opts, sources, w, sum, logger)

	n, werr := w.Close(context.WithoutCancel(ctx))
	if cerr := closeSink(); werr == nil {
		werr = cerr
	}
	sum.Extracted = n

	err = runErr
	if err == nil && werr != nil {
		err = fmt.Errorf("close output: %w", werr)
	}
	metrics.ObserveStep("extract", metrics.StatusOf(err), start)

	logger.Info("stage done",
		zap.String("stage", "extract"),
		zap.Int("records", sum.Records),
		zap.Int("extracted", sum.Extracted),
		zap.Int("empty", sum.Empty),
		zap.Int("skipped", sum.Skipped),
		zap.Duration("duration", time.Since(start).Truncate(time.Millisecond)),
		zap.Error(err))
	return err
}

func (r *Runner) stream(
	ctx context.Context,
	cfg config.Config,
	tpl *template.Template,
	opts extract.Options,
	sources []string,
	w output.UnitWriter,
	sum *Summary,
	logger *zap.Logger,
) error {
	if err := w.Open(ctx); err != nil {
		return fmt.Errorf("open output: %w", err)
	}

	pool := engine.New(engine.Config{
		Parallel:  cfg.Parallel,
		Workers:   cfg.Workers,
		ChunkSize: cfg.ChunkSize,
		Ordered:   cfg.Ordered,
	}, r.newWork(tpl, opts), logger)

	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = engine.DefaultQueueDepth()
	}
	frags := make(chan *xmlstream.Fragment, depth)

	g, gctx := errgroup.WithContext(ctx)

	results, err := pool.Run(gctx, frags)
	if err != nil {
		close(frags)
		return err
	}

	// A read error ends the input but does not cancel the group: records
	// already queued are still extracted and written before it is reported.
	var readErr error
	g.Go(func() error {
		defer close(frags)
		readErr = r.produce(gctx, tpl.RootTag, sources, frags, logger)
		return nil
	})

	g.Go(func() error {
		for res := range results {
			sum.Records++
			if res.Err != nil {
				kind := classify(res.Err)
				sum.Errors[kind]++
				sum.Skipped++
				metrics.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "skipped"})
				if cfg.OnError == config.OnErrorAbort {
					return res.Err
				}
				logger.Warn("record skipped",
					zap.Int("record", res.Index),
					zap.String("kind", kind),
					zap.Error(res.Err))
				continue
			}
			if res.Empty() {
				sum.Empty++
				metrics.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "empty"})
				continue
			}
			if err := w.Write(gctx, output.Unit{Index: res.Index, Text: res.Text}); err != nil {
				return fmt.Errorf("write record %d: %w", res.Index, err)
			}
			metrics.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "extracted"})
		}
		return nil
	})

	err = g.Wait()
	if err == nil {
		err = readErr
	}
	if err == nil {
		err = ctx.Err()
	}
	return err
}

// produce streams every source in order, numbering records across sources.
func (r *Runner) produce(ctx context.Context, rootTag string, sources []string, out chan<- *xmlstream.Fragment, logger *zap.Logger) error {
	total := 0
	for _, src := range sources {
		start := time.Now()
		rc, err := xmlstream.Open(ctx, xmlstream.Input{Path: src, Stdin: r.Stdin, Client: r.HTTPClient})
		if err != nil {
			metrics.ObserveStep("read", "error", start)
			return err
		}

		n, err := func() (int, error) {
			defer rc.Close()
			rd, err := xmlstream.NewReader(rc, rootTag, xmlstream.Options{})
			if err != nil {
				return 0, err
			}
			return xmlstream.Stream(ctx, rd, total, out)
		}()
		total += n
		metrics.ObserveStep("read", metrics.StatusOf(err), start)
		if err != nil {
			if ctx.Err() != nil {
				// The consumer or the caller stopped the run; its error wins.
				return nil
			}
			return fmt.Errorf("read %s: %w", src, err)
		}
		logger.Debug("source done",
			zap.String("source", src),
			zap.Int("records", n),
			zap.Duration("duration", time.Since(start).Truncate(time.Millisecond)))
	}
	return nil
}

func (r *Runner) newWork(tpl *template.Template, opts extract.Options) func() (engine.WorkFunc, error) {
	return func() (engine.WorkFunc, error) {
		ex, err := extract.New(tpl, opts)
		if err != nil {
			return nil, err
		}
		work := func(f *xmlstream.Fragment) (string, error) {
			return ex.Extract(f.Bytes)
		}
		if r.WrapWork != nil {
			work = r.WrapWork(work)
		}
		return work, nil
	}
}

// openSink returns the unit writer for cfg.Sink and a func releasing what
// backs it.
func (r *Runner) openSink(ctx context.Context, cfg config.Config, tpl *template.Template, runID string) (output.UnitWriter, func() error, error) {
	if cfg.Sink.Kind == "" || cfg.Sink.Kind == config.SinkFile {
		f, err := output.Create(cfg.Output, r.stdout())
		if err != nil {
			return nil, nil, fmt.Errorf("create output: %w", err)
		}
		format, _ := output.ParseFormat(cfg.Format)
		w := output.NewWriter(f, output.Options{
			Format:   format,
			Wrapper:  cfg.Wrapper,
			Envelope: tpl.RootTag,
			Whole:    cfg.Whole,
		})
		return w, f.Close, nil
	}

	newStore := r.NewStore
	if newStore == nil {
		newStore = storage.New
	}
	st, err := newStore(ctx, storage.Config{Kind: cfg.Sink.Kind, DSN: cfg.Sink.DSN})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s sink: %w", cfg.Sink.Kind, err)
	}
	w := output.NewTableWriter(st, cfg.Sink.Table, runID, cfg.Sink.BatchSize, r.logger())
	return w, func() error { st.Close(); return nil }, nil
}

func extractOptions(cfg config.Config) (extract.Options, error) {
	policy, err := extract.ParseWholePolicy(cfg.WholePolicy)
	if err != nil {
		return extract.Options{}, err
	}
	return extract.Options{
		Delimiter:    cfg.Delimiter,
		Raw:          cfg.Raw,
		LinePerField: cfg.LinePerField,
		Whole:        cfg.Whole,
		WholePolicy:  policy,
	}, nil
}

func classify(err error) string {
	var pe *extract.FragmentParseError
	var ce *extract.ChildElementError
	switch {
	case errors.As(err, &pe):
		return KindFragmentParse
	case errors.As(err, &ce):
		return KindChildElement
	default:
		return KindWorker
	}
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) runID() string {
	if r.NewRunID != nil {
		return r.NewRunID()
	}
	return uuid.NewString()
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout == nil {
		return io.Discard
	}
	return r.Stdout
}
