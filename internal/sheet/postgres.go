package sheet

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/irfndi/pcr-tracker-go/internal/utils"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pcr_sheet_cells (
	sheet      TEXT        NOT NULL,
	row_index  INTEGER     NOT NULL,
	col_index  INTEGER     NOT NULL,
	value      TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (sheet, row_index, col_index)
)`

const upsertRowSQL = `
INSERT INTO pcr_sheet_cells (sheet, row_index, col_index, value)
SELECT $1, $2, c.col_index, c.value
FROM unnest($3::int[], $4::text[]) AS c(col_index, value)
ON CONFLICT (sheet, row_index, col_index)
DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

const upsertCellSQL = `
INSERT INTO pcr_sheet_cells (sheet, row_index, col_index, value)
VALUES ($1, $2, $3, $4)
ON CONFLICT (sheet, row_index, col_index)
DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

const selectRowSQL = `
SELECT col_index, value FROM pcr_sheet_cells
WHERE sheet = $1 AND row_index = $2
ORDER BY col_index`

const selectColumnSQL = `
SELECT row_index, value FROM pcr_sheet_cells
WHERE sheet = $1 AND col_index = $2 AND value <> ''
ORDER BY row_index`

const lastRowSQL = `
SELECT COALESCE(MAX(row_index), 0) FROM pcr_sheet_cells
WHERE sheet = $1 AND col_index = 1 AND value <> ''`

const clearRowsSQL = `
DELETE FROM pcr_sheet_cells
WHERE sheet = $1 AND row_index BETWEEN $2 AND $3`

// PostgresStore keeps the grid in a cell table keyed by sheet name, so one
// database can hold several logs. A row write is a single statement.
type PostgresStore struct {
	pool  DatabasePool
	sheet string
}

// NewPostgresStore returns a store over pool for the named sheet.
func NewPostgresStore(pool DatabasePool, sheet string) *PostgresStore {
	return &PostgresStore{pool: pool, sheet: sheet}
}

// EnsureSchema creates the cell table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create pcr_sheet_cells: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReadRow(ctx context.Context, index int) (Row, error) {
	rows, err := s.pool.Query(ctx, selectRowSQL, s.sheet, index)
	if err != nil {
		return nil, fmt.Errorf("failed to read row %d: %w", index, err)
	}
	defer rows.Close()

	var out Row
	for rows.Next() {
		var col int
		var value string
		if err := rows.Scan(&col, &value); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", index, err)
		}
		for len(out) < col {
			out = append(out, "")
		}
		out[col-1] = value
	}
	return out, rows.Err()
}

func (s *PostgresStore) WriteRow(ctx context.Context, index int, values []string) error {
	cols := make([]int32, len(values))
	for i := range values {
		cols[i] = int32(i + 1)
	}
	if _, err := s.pool.Exec(ctx, upsertRowSQL, s.sheet, index, cols, values); err != nil {
		return &utils.StoreWriteError{Op: "write_row", Row: index, Err: err}
	}
	return nil
}

func (s *PostgresStore) WriteCell(ctx context.Context, row, col int, value string) error {
	if _, err := s.pool.Exec(ctx, upsertCellSQL, s.sheet, row, col, value); err != nil {
		return &utils.StoreWriteError{Op: "write_cell", Row: row, Err: err}
	}
	return nil
}

func (s *PostgresStore) AppendRow(ctx context.Context, values []string) (int, error) {
	var last int
	if err := s.pool.QueryRow(ctx, lastRowSQL, s.sheet).Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to find last row: %w", err)
	}
	index := last + 1
	return index, s.WriteRow(ctx, index, values)
}

func (s *PostgresStore) ColumnValues(ctx context.Context, col int) ([]string, error) {
	rows, err := s.pool.Query(ctx, selectColumnSQL, s.sheet, col)
	if err != nil {
		return nil, fmt.Errorf("failed to read column %d: %w", col, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var row int
		var value string
		if err := rows.Scan(&row, &value); err != nil {
			return nil, fmt.Errorf("failed to scan column %d: %w", col, err)
		}
		for len(out) < row {
			out = append(out, "")
		}
		out[row-1] = value
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindEmptyRow(ctx context.Context, start, end int) (int, bool, error) {
	col, err := s.ColumnValues(ctx, 1)
	if err != nil {
		return 0, false, err
	}
	row, ok := FirstEmptyRow(col, start, end)
	return row, ok, nil
}

func (s *PostgresStore) ClearRows(ctx context.Context, start, end int) error {
	if _, err := s.pool.Exec(ctx, clearRowsSQL, s.sheet, start, end); err != nil {
		return fmt.Errorf("failed to clear rows %d-%d: %w", start, end, err)
	}
	return nil
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	var one int
	return s.pool.QueryRow(ctx, "SELECT 1").Scan(&one)
}
