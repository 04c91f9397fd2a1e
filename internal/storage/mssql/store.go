// Package mssql stores output units in SQL Server through database/sql.
//
// The package does not import a driver; the "sqlserver" driver must be
// registered by the application (see storage/all).
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"xmlbar/internal/storage"
)

// SQL Server allows 2100 parameters per statement; each unit uses four.
const maxRowsPerInsert = 2000 / 4

// Store implements storage.Store for SQL Server.
type Store struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New opens a "sqlserver" connection and validates it with a ping.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

// EnsureTable creates the units table when OBJECT_ID finds nothing.
func (s *Store) EnsureTable(ctx context.Context, table string) error {
	if err := storage.ValidateTableName(table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, buildCreateSQL(table)); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", table, err)
	}
	return nil
}

// InsertUnits uses an insert-where-not-exists statement per chunk, inside one
// transaction.
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
		q, args := buildInsertNotExistsSQL(table, part)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("mssql: insert into %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes each part: "dbo.units" -> [dbo].[units].
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(parts[i])
	}
	return strings.Join(parts, ".")
}

func buildCreateSQL(table string) string {
	pk := "PK_" + strings.ReplaceAll(table, ".", "_")
	return fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
  run_id NVARCHAR(64) NOT NULL,
  seq BIGINT NOT NULL,
  record_index BIGINT NOT NULL,
  body NVARCHAR(MAX) NOT NULL,
  CONSTRAINT %s PRIMARY KEY (run_id, seq)
);`, table, mssqlTableIdent(table), mssqlIdent(pk))
}

// buildInsertNotExistsSQL inserts the VALUES rows whose key is not already in
// the table. Placeholders are @p1..@pN as the sqlserver driver expects.
func buildInsertNotExistsSQL(table string, units []storage.Unit) (string, []any) {
	var b strings.Builder
	cols := make([]string, len(storage.Columns))
	for i, c := range storage.Columns {
		cols[i] = mssqlIdent(c)
	}
	colList := strings.Join(cols, ", ")

	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (" + colList + ") SELECT " + colList + " FROM (VALUES ")

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
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, v)
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(") AS v (" + colList + ") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" t WHERE ")
	for i, c := range storage.DedupeColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "t.%s = v.%s", mssqlIdent(c), mssqlIdent(c))
	}
	b.WriteString(");")
	return b.String(), args
}
