package engine

import "fmt"

// Result is the outcome of one record. Exactly one Result is produced per
// input fragment, whether extraction succeeded, produced nothing, or failed.
type Result struct {
	Index int
	Text  string
	Err   error // *RecordError when non-nil
}

// Empty reports a successful record that produced no output.
func (r Result) Empty() bool { return r.Err == nil && r.Text == "" }

// RecordError ties a per-record failure to its record number.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string { return fmt.Sprintf("record %d: %v", e.Index, e.Err) }

func (e *RecordError) Unwrap() error { return e.Err }
