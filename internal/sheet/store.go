// Package sheet is the persisted log: an append-only grid of rows addressed
// by 1-based row and column indexes, backed by a spreadsheet, Postgres or
// memory.
package sheet

import (
	"context"
	"strings"
)

// Row is the cell values of one row, index 0 holding column A. Cells past
// the end of the slice are empty.
type Row []string

// Get returns the value in 1-based column col, or "" when absent.
func (r Row) Get(col int) string {
	if col < 1 || col > len(r) {
		return ""
	}
	return r[col-1]
}

// IsEmpty reports whether every cell is blank.
func (r Row) IsEmpty() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Store is the tabular collaborator the update cycle writes to.
type Store interface {
	// ReadRow returns the cells of row index.
	ReadRow(ctx context.Context, index int) (Row, error)
	// WriteRow writes values starting at column A of row index in one
	// operation.
	WriteRow(ctx context.Context, index int, values []string) error
	// WriteCell writes a single cell.
	WriteCell(ctx context.Context, row, col int, value string) error
	// AppendRow writes values after the last non-empty cell of the store's
	// key column and returns the row index used. The key column is A for
	// MemoryStore and PostgresStore and configurable for SheetsStore.
	AppendRow(ctx context.Context, values []string) (int, error)
	// ColumnValues returns column col from row 1 down to its last
	// non-empty cell.
	ColumnValues(ctx context.Context, col int) ([]string, error)
	// FindEmptyRow returns the first row in [start, end] whose key column
	// cell is empty.
	FindEmptyRow(ctx context.Context, start, end int) (int, bool, error)
	// ClearRows blanks every cell of rows [start, end].
	ClearRows(ctx context.Context, start, end int) error
	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// FirstEmptyRow scans values (column cells from row 1) for the first blank
// cell within [start, end]. Rows past the end of values are blank.
func FirstEmptyRow(values []string, start, end int) (int, bool) {
	if start < 1 {
		start = 1
	}
	for r := start; r <= end; r++ {
		if r > len(values) || strings.TrimSpace(values[r-1]) == "" {
			return r, true
		}
	}
	return 0, false
}

// LastNonEmptyRow returns the highest row index with a non-blank value, or
// 0 when the column is blank.
func LastNonEmptyRow(values []string) int {
	for i := len(values) - 1; i >= 0; i-- {
		if strings.TrimSpace(values[i]) != "" {
			return i + 1
		}
	}
	return 0
}

func trimTrailingBlank(values []string) []string {
	return values[:LastNonEmptyRow(values)]
}
