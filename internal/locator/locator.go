// Package locator finds the row the next observation is written to.
package locator

import (
	"context"
	"fmt"
	"strings"

	"github.com/irfndi/pcr-tracker-go/internal/sheet"
)

// Region bounds the data rows of the log. HeaderRow sits above the region
// and is never returned.
type Region struct {
	HeaderRow int
	FirstRow  int
	LastRow   int
	// KeyColumn is the column whose blank cell marks an empty row.
	KeyColumn int
}

// DefaultRegion is the layout of the live worksheet: header on row 1,
// data rows 18 through 2000, keyed on the timestamp column.
func DefaultRegion() Region {
	return Region{HeaderRow: 1, FirstRow: 18, LastRow: 2000, KeyColumn: 1}
}

// Validate checks the region bounds.
func (r Region) Validate() error {
	switch {
	case r.FirstRow < 1:
		return fmt.Errorf("first data row must be positive, got %d", r.FirstRow)
	case r.LastRow < r.FirstRow:
		return fmt.Errorf("last data row %d is before first data row %d", r.LastRow, r.FirstRow)
	case r.HeaderRow >= r.FirstRow:
		return fmt.Errorf("header row %d must be above first data row %d", r.HeaderRow, r.FirstRow)
	case r.KeyColumn < 1:
		return fmt.Errorf("key column must be positive, got %d", r.KeyColumn)
	}
	return nil
}

// Result is the row chosen by Locate. Overflow is true when the region had
// no gap and the row is past LastRow.
type Result struct {
	Row      int
	Overflow bool
}

// Locate returns the first empty row within the region. Earlier gaps are
// filled before the log grows; with no gap the row after the last written
// one is returned.
func Locate(ctx context.Context, store sheet.Store, region Region) (Result, error) {
	if err := region.Validate(); err != nil {
		return Result{}, err
	}
	values, err := store.ColumnValues(ctx, region.KeyColumn)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read key column: %w", err)
	}
	return LocateIn(values, region), nil
}

// LocateIn applies Locate to an already fetched key column.
func LocateIn(values []string, region Region) Result {
	if row, ok := sheet.FirstEmptyRow(values, region.FirstRow, region.LastRow); ok {
		return Result{Row: row}
	}
	next := sheet.LastNonEmptyRow(values) + 1
	if next < region.FirstRow {
		next = region.FirstRow
	}
	return Result{Row: next, Overflow: next > region.LastRow}
}

// Previous returns the nearest non-empty row above row inside the region,
// or 0 when row is the first entry.
func Previous(values []string, region Region, row int) int {
	for r := row - 1; r >= region.FirstRow; r-- {
		if r <= len(values) && strings.TrimSpace(values[r-1]) != "" {
			return r
		}
	}
	return 0
}
