// Package storage persists extraction output units in a relational table.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Config selects and addresses a backend.
type Config struct {
	Kind string // "sqlite", "postgres", "mssql"
	DSN  string
}

// Unit is one stored output unit.
//
// (RunID, Seq) identifies a row; re-inserting the same pair is a no-op, so a
// retried batch does not duplicate output.
type Unit struct {
	RunID       string
	Seq         int64 // 1-based write order within the run
	RecordIndex int   // record number in the input document
	Body        string
}

// Columns is the fixed column order of the units table.
var Columns = []string{"run_id", "seq", "record_index", "body"}

// DedupeColumns is the primary key of the units table.
var DedupeColumns = []string{"run_id", "seq"}

// Values returns u in Columns order.
func (u Unit) Values() []any {
	return []any{u.RunID, u.Seq, int64(u.RecordIndex), u.Body}
}

// Store is a backend-agnostic sink for output units. Each backend implements
// the create-if-absent and insert-ignore semantics in its own dialect.
type Store interface {
	// Close releases backend resources. Call once.
	Close()

	// EnsureTable creates the units table if it does not exist.
	EnsureTable(ctx context.Context, table string) error

	// InsertUnits writes units, skipping (run_id, seq) pairs already present.
	// It returns the number of rows actually inserted.
	InsertUnits(ctx context.Context, table string, units []Unit) (int64, error)
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register makes a backend available under kind. It is meant to be called
// from a backend package's init().
//
// Panics if kind is empty, f is nil, or kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Store using the registered backend factory.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidateTableName accepts "table" or "schema.table" made of word characters.
// Table names are interpolated into SQL, so nothing else is allowed.
func ValidateTableName(name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("storage: invalid table name %q", name)
	}
	return nil
}

// Chunk splits units into slices of at most n.
func Chunk(units []Unit, n int) [][]Unit {
	if n <= 0 {
		n = len(units)
	}
	var out [][]Unit
	for start := 0; start < len(units); start += n {
		end := min(start+n, len(units))
		out = append(out, units[start:end])
	}
	return out
}
