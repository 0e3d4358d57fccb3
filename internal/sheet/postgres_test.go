package sheet

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/pcr-tracker-go/internal/utils"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err, "Failed to create mock pool")
	t.Cleanup(mockPool.Close)
	return NewPostgresStore(mockPool, "PCR_Data_Live"), mockPool
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectExec(`CREATE TABLE IF NOT EXISTS pcr_sheet_cells`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_WriteRow(t *testing.T) {
	store, mockPool := newMockStore(t)
	values := []string{"2025-03-14 10:31:00 IST", "1,234", "0"}

	mockPool.ExpectExec(`INSERT INTO pcr_sheet_cells`).
		WithArgs("PCR_Data_Live", 21, []int32{1, 2, 3}, values).
		WillReturnResult(pgxmock.NewResult("INSERT", 3))

	require.NoError(t, store.WriteRow(context.Background(), 21, values))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_WriteRowError(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectExec(`INSERT INTO pcr_sheet_cells`).
		WithArgs("PCR_Data_Live", 21, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err := store.WriteRow(context.Background(), 21, []string{"a"})
	var writeErr *utils.StoreWriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, 21, writeErr.Row)
	assert.False(t, writeErr.Partial)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_ReadRow(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectQuery(`SELECT col_index, value FROM pcr_sheet_cells`).
		WithArgs("PCR_Data_Live", 20).
		WillReturnRows(pgxmock.NewRows([]string{"col_index", "value"}).
			AddRow(1, "2025-03-14 10:30:00 IST").
			AddRow(2, "100").
			AddRow(4, "-40"))

	row, err := store.ReadRow(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, Row{"2025-03-14 10:30:00 IST", "100", "", "-40"}, row)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_FindEmptyRow(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectQuery(`SELECT row_index, value FROM pcr_sheet_cells`).
		WithArgs("PCR_Data_Live", 1).
		WillReturnRows(pgxmock.NewRows([]string{"row_index", "value"}).
			AddRow(17, "Timestamp").
			AddRow(18, "a").
			AddRow(19, "b").
			AddRow(20, "c").
			AddRow(22, "e"))

	row, ok, err := store.FindEmptyRow(context.Background(), 18, 40)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 21, row)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_AppendRow(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectQuery(`SELECT COALESCE\(MAX\(row_index\), 0\)`).
		WithArgs("PCR_Data_Live").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(25))
	mockPool.ExpectExec(`INSERT INTO pcr_sheet_cells`).
		WithArgs("PCR_Data_Live", 26, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	idx, err := store.AppendRow(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, 26, idx)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresStore_ClearRowsAndHealth(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectExec(`DELETE FROM pcr_sheet_cells`).
		WithArgs("PCR_Data_Live", 18, 40).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))
	mockPool.ExpectQuery(`SELECT 1`).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	ctx := context.Background()
	require.NoError(t, store.ClearRows(ctx, 18, 40))
	require.NoError(t, store.HealthCheck(ctx))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
