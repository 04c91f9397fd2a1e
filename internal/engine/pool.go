// Package engine fans record fragments out to a fixed set of workers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"xmlbar/internal/metrics"
	"xmlbar/internal/xmlstream"

	"go.uber.org/zap"
)

// WorkFunc turns one fragment into output text. It must not keep frag.Bytes
// after returning.
type WorkFunc func(frag *xmlstream.Fragment) (string, error)

// Config sizes the pool.
type Config struct {
	// Parallel false means a single worker, which keeps document order.
	Parallel bool
	// Workers is the worker count in parallel mode; <= 0 uses DefaultWorkers().
	Workers int
	// ChunkSize is how many fragments are handed to a worker at once.
	ChunkSize int
	// Ordered restores record order under parallel mode. Fragment indexes
	// must then run 1, 2, 3, ...
	Ordered bool
}

// Pool applies per-worker WorkFuncs to a stream of fragments.
type Pool struct {
	cfg     Config
	newWork func() (WorkFunc, error)
	logger  *zap.Logger
}

// New creates a Pool. newWork is called once per worker so that each worker
// owns its own non-shareable state.
func New(cfg Config, newWork func() (WorkFunc, error), logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100
	}
	switch {
	case !cfg.Parallel:
		cfg.Workers = 1
	case cfg.Workers <= 0:
		cfg.Workers = DefaultWorkers()
	}
	return &Pool{cfg: cfg, newWork: newWork, logger: logger}
}

// Workers is the effective worker count.
func (p *Pool) Workers() int { return p.cfg.Workers }

// Run consumes in until it is closed and returns the result channel, which is
// closed after the last result.
//
// Semantics:
//   - Results arrive in completion order unless the pool is sequential or
//     Ordered is set.
//   - Every fragment is Freed by the pool once its work is done, or Dropped
//     if ctx ends first.
//   - After ctx is done, in is still drained so the producer never blocks;
//     no further results are sent.
//   - A panicking WorkFunc becomes an error Result for that record.
func (p *Pool) Run(ctx context.Context, in <-chan *xmlstream.Fragment) (<-chan Result, error) {
	works := make([]WorkFunc, p.cfg.Workers)
	for i := range works {
		w, err := p.newWork()
		if err != nil {
			return nil, fmt.Errorf("engine: init worker %d: %w", i, err)
		}
		works[i] = w
	}

	batchCh := make(chan []*xmlstream.Fragment, p.cfg.Workers*2)
	out := make(chan Result, p.cfg.Workers*p.cfg.ChunkSize)

	var wg sync.WaitGroup
	wg.Add(len(works))
	for id, work := range works {
		go func(workerID int, work WorkFunc) {
			defer wg.Done()
			for batch := range batchCh {
				p.runBatch(ctx, workerID, work, batch, out)
			}
		}(id, work)
	}

	// Producer: group fragments into batches. Ownership moves with the batch.
	go func() {
		defer func() {
			close(batchCh)
			wg.Wait()
			close(out)
		}()

		batch := make([]*xmlstream.Fragment, 0, p.cfg.ChunkSize)
		flush := func() {
			if len(batch) == 0 {
				return
			}
			b := batch
			batch = make([]*xmlstream.Fragment, 0, p.cfg.ChunkSize)
			select {
			case batchCh <- b:
			case <-ctx.Done():
				for _, f := range b {
					f.Drop()
				}
			}
		}

		for f := range in {
			select {
			case <-ctx.Done():
				f.Drop()
				continue
			default:
			}
			batch = append(batch, f)
			if len(batch) >= p.cfg.ChunkSize {
				flush()
			}
		}
		flush()
	}()

	p.logger.Debug("pool started",
		zap.Int("workers", p.cfg.Workers),
		zap.Int("chunk_size", p.cfg.ChunkSize),
		zap.Bool("ordered", p.cfg.Ordered))

	if p.cfg.Ordered && p.cfg.Workers > 1 {
		return Unshuffle(ctx, out, 1), nil
	}
	return out, nil
}

func (p *Pool) runBatch(ctx context.Context, workerID int, work WorkFunc, batch []*xmlstream.Fragment, out chan<- Result) {
	// If canceled, drain quickly.
	if ctx.Err() != nil {
		for _, f := range batch {
			f.Drop()
		}
		return
	}

	start := time.Now()
	for i, f := range batch {
		res := safeWork(work, f)
		f.Free()

		select {
		case out <- res:
		case <-ctx.Done():
			for _, rest := range batch[i+1:] {
				rest.Drop()
			}
			return
		}
	}
	metrics.IncCounter(metrics.BatchesTotal, 1, nil)
	p.logger.Debug("batch done",
		zap.Int("worker", workerID),
		zap.Int("records", len(batch)),
		zap.Duration("duration", time.Since(start).Truncate(time.Millisecond)))
}

func safeWork(work WorkFunc, f *xmlstream.Fragment) (res Result) {
	res.Index = f.Index
	defer func() {
		if r := recover(); r != nil {
			res.Text = ""
			res.Err = &RecordError{Index: f.Index, Err: fmt.Errorf("worker panic: %v", r)}
		}
	}()

	text, err := work(f)
	if err != nil {
		var re *RecordError
		if !errors.As(err, &re) {
			err = &RecordError{Index: f.Index, Err: err}
		}
		return Result{Index: f.Index, Err: err}
	}
	res.Text = text
	return res
}
