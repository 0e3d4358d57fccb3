package locator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/pcr-tracker-go/internal/sheet"
)

type failingStore struct {
	sheet.Store
}

func (failingStore) ColumnValues(context.Context, int) ([]string, error) {
	return nil, errors.New("quota exceeded")
}

func seed(t *testing.T, rows ...int) *sheet.MemoryStore {
	t.Helper()
	s := sheet.NewMemoryStore()
	require.NoError(t, s.WriteRow(context.Background(), 1, []string{"Timestamp"}))
	for _, r := range rows {
		require.NoError(t, s.WriteRow(context.Background(), r, []string{fmt.Sprintf("2025-03-14 10:%02d:00 IST", r)}))
	}
	return s
}

func TestLocate_GapFill(t *testing.T) {
	store := seed(t, 18, 19, 20, 22)

	res, err := Locate(context.Background(), store, DefaultRegion())
	require.NoError(t, err)
	assert.Equal(t, 21, res.Row)
	assert.False(t, res.Overflow)
}

func TestLocate_EmptyRegion(t *testing.T) {
	res, err := Locate(context.Background(), seed(t), DefaultRegion())
	require.NoError(t, err)
	assert.Equal(t, 18, res.Row)
}

func TestLocate_Append(t *testing.T) {
	region := Region{HeaderRow: 1, FirstRow: 18, LastRow: 20, KeyColumn: 1}

	res, err := Locate(context.Background(), seed(t, 18, 19), region)
	require.NoError(t, err)
	assert.Equal(t, Result{Row: 20}, res)

	res, err = Locate(context.Background(), seed(t, 18, 19, 20, 21), region)
	require.NoError(t, err)
	assert.Equal(t, Result{Row: 22, Overflow: true}, res)
}

func TestLocate_Errors(t *testing.T) {
	_, err := Locate(context.Background(), failingStore{}, DefaultRegion())
	assert.ErrorContains(t, err, "quota exceeded")

	_, err = Locate(context.Background(), sheet.NewMemoryStore(), Region{HeaderRow: 18, FirstRow: 18, LastRow: 40, KeyColumn: 1})
	assert.Error(t, err)
}

func TestRegion_Validate(t *testing.T) {
	tests := []struct {
		name   string
		region Region
		ok     bool
	}{
		{"default", DefaultRegion(), true},
		{"zero first row", Region{FirstRow: 0, LastRow: 5, KeyColumn: 1}, false},
		{"inverted", Region{HeaderRow: 1, FirstRow: 10, LastRow: 5, KeyColumn: 1}, false},
		{"header inside region", Region{HeaderRow: 10, FirstRow: 10, LastRow: 20, KeyColumn: 1}, false},
		{"no key column", Region{HeaderRow: 1, FirstRow: 2, LastRow: 20}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.region.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestPrevious(t *testing.T) {
	region := DefaultRegion()
	values := make([]string, 22)
	values[0] = "Timestamp"
	values[17], values[18], values[19], values[21] = "a", "b", "c", "e"

	assert.Equal(t, 20, Previous(values, region, 21))
	assert.Equal(t, 22, Previous(values, region, 23))
	assert.Equal(t, 0, Previous(values, region, 18))
	assert.Equal(t, 0, Previous([]string{"Timestamp"}, region, 18))
}
