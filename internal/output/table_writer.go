package output

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"xmlbar/internal/storage"
)

// TableWriter stores units as rows of a storage.Store table, batching inserts.
// Rows are keyed by (run_id, seq) where seq is the write order within the run,
// so replaying a batch does not duplicate rows.
type TableWriter struct {
	store     storage.Store
	table     string
	runID     string
	batchSize int
	logger    *zap.Logger

	pending []storage.Unit
	seq     int64
	count   int
}

// NewTableWriter does not take ownership of store.
func NewTableWriter(store storage.Store, table, runID string, batchSize int, logger *zap.Logger) *TableWriter {
	if batchSize <= 0 {
		batchSize = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableWriter{
		store:     store,
		table:     table,
		runID:     runID,
		batchSize: batchSize,
		logger:    logger,
		pending:   make([]storage.Unit, 0, batchSize),
	}
}

// Open creates the table if it does not exist.
func (t *TableWriter) Open(ctx context.Context) error {
	if t.table == "" {
		return fmt.Errorf("table writer: table is empty")
	}
	return t.store.EnsureTable(ctx, t.table)
}

// Write buffers u and inserts once the batch is full. Empty units are skipped.
func (t *TableWriter) Write(ctx context.Context, u Unit) error {
	if u.Text == "" {
		return nil
	}
	t.seq++
	t.pending = append(t.pending, storage.Unit{
		RunID:       t.runID,
		Seq:         t.seq,
		RecordIndex: u.Index,
		Body:        u.Text,
	})
	t.count++
	if len(t.pending) >= t.batchSize {
		return t.flush(ctx)
	}
	return nil
}

// Close inserts the remaining rows.
func (t *TableWriter) Close(ctx context.Context) (int, error) {
	return t.count, t.flush(ctx)
}

func (t *TableWriter) flush(ctx context.Context) error {
	if len(t.pending) == 0 {
		return nil
	}
	n, err := t.store.InsertUnits(ctx, t.table, t.pending)
	if err != nil {
		return fmt.Errorf("insert %d units into %s: %w", len(t.pending), t.table, err)
	}
	t.logger.Debug("units stored",
		zap.String("table", t.table),
		zap.Int("batch", len(t.pending)),
		zap.Int64("inserted", n))
	t.pending = t.pending[:0]
	return nil
}
