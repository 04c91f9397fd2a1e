// Package sqlite stores output units in SQLite via modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"xmlbar/internal/storage"
)

// maxRowsPerInsert keeps statements under SQLite's bound-parameter limit on
// older builds (999).
const maxRowsPerInsert = 999 / 4

// Store implements storage.Store for SQLite.
type Store struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens cfg.DSN (a file path or "file::memory:?cache=shared") and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

// EnsureTable creates the units table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context, table string) error {
	if err := storage.ValidateTableName(table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, buildCreateSQL(table)); err != nil {
		return fmt.Errorf("sqlite: create table %s: %w", table, err)
	}
	return nil
}

// InsertUnits writes units in one transaction. INSERT OR IGNORE relies on the
// (run_id, seq) primary key for idempotency.
func (s *Store) InsertUnits(ctx context.Context, table string, units []storage.Unit) (int64, error) {
	if len(units) == 0 {
		return 0, nil
	}
	if err := storage.ValidateTableName(table); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, part := range storage.Chunk(units, maxRowsPerInsert) {
		q, args := buildInsertSQL(table, part)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("sqlite: insert into %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func buildCreateSQL(table string) string {
	return "CREATE TABLE IF NOT EXISTS " + table + ` (
  run_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  record_index INTEGER NOT NULL,
  body TEXT NOT NULL,
  PRIMARY KEY (run_id, seq)
)`
}

// buildInsertSQL is pure so placeholder layout can be tested without a
// database.
func buildInsertSQL(table string, units []storage.Unit) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(storage.Columns, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(units)*len(storage.Columns))
	for i, u := range units {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?)")
		args = append(args, u.Values()...)
	}
	return b.String(), args
}
