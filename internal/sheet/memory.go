package sheet

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps the grid in process. It backs dry runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[int][]string
}

// NewMemoryStore returns an empty grid.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int][]string)}
}

func (m *MemoryStore) ReadRow(_ context.Context, index int) (Row, error) {
	if index < 1 {
		return nil, fmt.Errorf("invalid row %d", index)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append(Row(nil), m.rows[index]...), nil
}

func (m *MemoryStore) WriteRow(_ context.Context, index int, values []string) error {
	if index < 1 {
		return fmt.Errorf("invalid row %d", index)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[index]
	if len(row) < len(values) {
		grown := make([]string, len(values))
		copy(grown, row)
		row = grown
	}
	copy(row, values)
	m.rows[index] = row
	return nil
}

func (m *MemoryStore) WriteCell(_ context.Context, row, col int, value string) error {
	if row < 1 || col < 1 {
		return fmt.Errorf("invalid cell (%d, %d)", row, col)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cells := m.rows[row]
	if len(cells) < col {
		grown := make([]string, col)
		copy(grown, cells)
		cells = grown
	}
	cells[col-1] = value
	m.rows[row] = cells
	return nil
}

func (m *MemoryStore) AppendRow(ctx context.Context, values []string) (int, error) {
	col, err := m.ColumnValues(ctx, 1)
	if err != nil {
		return 0, err
	}
	index := len(col) + 1
	return index, m.WriteRow(ctx, index, values)
}

func (m *MemoryStore) ColumnValues(_ context.Context, col int) ([]string, error) {
	if col < 1 {
		return nil, fmt.Errorf("invalid column %d", col)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	last := 0
	for r := range m.rows {
		if r > last {
			last = r
		}
	}
	out := make([]string, last)
	for r, cells := range m.rows {
		if len(cells) >= col {
			out[r-1] = cells[col-1]
		}
	}
	return trimTrailingBlank(out), nil
}

func (m *MemoryStore) FindEmptyRow(ctx context.Context, start, end int) (int, bool, error) {
	col, err := m.ColumnValues(ctx, 1)
	if err != nil {
		return 0, false, err
	}
	row, ok := FirstEmptyRow(col, start, end)
	return row, ok, nil
}

func (m *MemoryStore) ClearRows(_ context.Context, start, end int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for r := range m.rows {
		if r >= start && r <= end {
			delete(m.rows, r)
		}
	}
	return nil
}

func (m *MemoryStore) HealthCheck(context.Context) error {
	return nil
}

// Len returns the number of non-empty rows, used by tests and status.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, cells := range m.rows {
		if !Row(cells).IsEmpty() {
			n++
		}
	}
	return n
}
