// Package postgres stores output units in PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"xmlbar/internal/storage"
)

// maxRowsPerInsert keeps statements well below the 65535 parameter limit.
const maxRowsPerInsert = 1000

// Store implements storage.Store for Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pgx pool for cfg.DSN and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() { s.pool.Close() }

// EnsureTable creates the schema (when qualified) and the units table.
func (s *Store) EnsureTable(ctx context.Context, table string) error {
	if err := storage.ValidateTableName(table); err != nil {
		return err
	}
	schemaSQL, tableSQL := buildCreateSQL(table)
	if schemaSQL != "" {
		if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("postgres: create schema for %s: %w", table, err)
		}
	}
	if _, err := s.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("postgres: create table %s: %w", table, err)
	}
	return nil
}

// InsertUnits inserts units in chunks inside one transaction.
func (s *Store) InsertUnits(ctx context.Context, table string, units []storage.Unit) (int64, error) {
	if len(units) == 0 {
		return 0, nil
	}
	if err := storage.ValidateTableName(table); err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var total int64
	for _, part := range storage.Chunk(units, maxRowsPerInsert) {
		q, args := buildInsertSQL(table, part)
		cmd, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("postgres: insert into %s: %w", table, err)
		}
		total += cmd.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

func splitQualifiedName(name string) (schema, table string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func pgIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func pgTableIdent(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}

func buildCreateSQL(table string) (schemaSQL, tableSQL string) {
	if schema, _ := splitQualifiedName(table); schema != "" {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + pgIdent(schema) + ";"
	}
	tableSQL = "CREATE TABLE IF NOT EXISTS " + pgTableIdent(table) + ` (
  run_id TEXT NOT NULL,
  seq BIGINT NOT NULL,
  record_index BIGINT NOT NULL,
  body TEXT NOT NULL,
  PRIMARY KEY (run_id, seq)
);`
	return schemaSQL, tableSQL
}

// buildInsertSQL constructs one INSERT with $n placeholders and
// ON CONFLICT DO NOTHING on the primary key. It is pure and deterministic.
func buildInsertSQL(table string, units []storage.Unit) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTableIdent(table))
	b.WriteString(" (")
	for i, c := range storage.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(units)*len(storage.Columns))
	p := 1
	for i, u := range units {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, v := range u.Values() {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, v)
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(" ON CONFLICT (")
	for i, c := range storage.DedupeColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") DO NOTHING;")
	return b.String(), args
}
