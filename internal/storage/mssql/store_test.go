package mssql

import (
	"strings"
	"testing"

	"xmlbar/internal/storage"
)

// TestBuildInsertNotExistsSQL verifies @p numbering and the dedupe predicate.
func TestBuildInsertNotExistsSQL(t *testing.T) {
	t.Parallel()

	q, args := buildInsertNotExistsSQL("dbo.units", []storage.Unit{
		{RunID: "r", Seq: 1, RecordIndex: 2, Body: "a"},
		{RunID: "r", Seq: 2, RecordIndex: 1, Body: "b"},
	})

	wantParts := []string{
		"INSERT INTO [dbo].[units] ([run_id], [seq], [record_index], [body]) SELECT",
		"(@p1, @p2, @p3, @p4), (@p5, @p6, @p7, @p8)",
		"AS v ([run_id], [seq], [record_index], [body])",
		"t.[run_id] = v.[run_id] AND t.[seq] = v.[seq]",
	}
	for _, w := range wantParts {
		if !strings.Contains(q, w) {
			t.Fatalf("sql missing %q:\n%s", w, q)
		}
	}
	if len(args) != 8 || args[4] != "r" || args[5] != int64(2) {
		t.Fatalf("unexpected args: %v", args)
	}
}

// TestBuildCreateSQL quotes the table and names the primary key.
func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	q := buildCreateSQL("dbo.units")
	for _, w := range []string{"OBJECT_ID(N'dbo.units', N'U')", "CREATE TABLE [dbo].[units]", "CONSTRAINT [PK_dbo_units] PRIMARY KEY (run_id, seq)"} {
		if !strings.Contains(q, w) {
			t.Fatalf("create sql missing %q:\n%s", w, q)
		}
	}
}

// TestMaxRowsPerInsert stays under the parameter limit.
func TestMaxRowsPerInsert(t *testing.T) {
	t.Parallel()

	if maxRowsPerInsert*len(storage.Columns) > 2100 {
		t.Fatalf("too many parameters per statement: %d", maxRowsPerInsert*len(storage.Columns))
	}
}
