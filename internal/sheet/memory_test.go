package sheet

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/pcr-tracker-go/internal/models"
)

func TestFirstEmptyRow(t *testing.T) {
	col := []string{"Header", "", "", "a", "b", "", "c"}

	row, ok := FirstEmptyRow(col, 4, 10)
	require.True(t, ok)
	assert.Equal(t, 6, row)

	row, ok = FirstEmptyRow(col, 4, 5)
	assert.False(t, ok)
	assert.Equal(t, 0, row)

	row, ok = FirstEmptyRow(col, 8, 10)
	require.True(t, ok)
	assert.Equal(t, 8, row)

	assert.Equal(t, 7, LastNonEmptyRow(col))
	assert.Equal(t, 0, LastNonEmptyRow([]string{"", " "}))
}

func TestMemoryStore_ReadWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.WriteRow(ctx, 18, []string{"a", "b", "c"}))
	require.NoError(t, s.WriteCell(ctx, 18, 5, "e"))

	row, err := s.ReadRow(ctx, 18)
	require.NoError(t, err)
	assert.Equal(t, Row{"a", "b", "c", "", "e"}, row)
	assert.Equal(t, "e", row.Get(5))
	assert.Equal(t, "", row.Get(9))

	empty, err := s.ReadRow(ctx, 19)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	_, err = s.ReadRow(ctx, 0)
	assert.Error(t, err)
}

func TestMemoryStore_ColumnAndAppend(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.WriteRow(ctx, 1, []string{"Timestamp"}))
	require.NoError(t, s.WriteRow(ctx, 3, []string{"x"}))

	col, err := s.ColumnValues(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Timestamp", "", "x"}, col)

	idx, err := s.AppendRow(ctx, []string{"y"})
	require.NoError(t, err)
	assert.Equal(t, 4, idx)

	row, ok, err := s.FindEmptyRow(ctx, 1, 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, row)

	require.NoError(t, s.ClearRows(ctx, 3, 4))
	assert.Equal(t, 1, s.Len())
}

func TestCodec_EncodeDecode(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	codec := NewCodec(models.DefaultColumnLayout(), ist)

	row := models.ReconciledRow{
		ExtractedRecord: models.ExtractedRecord{
			IntradayPutOIChange:  1234567,
			IntradayCallOIChange: -567,
			IntradayPCR:          decimal.RequireFromString("0.65"),
			TotalPutOI:           48210,
			TotalCallOI:          51300,
			OverallPCR:           decimal.RequireFromString("0.94"),
			UnderlyingPrice:      6120,
			PriceChange:          decimal.RequireFromString("-35.5"),
			PriceChangePercent:   decimal.RequireFromString("-0.58"),
			DayHigh:              6180,
			DayLow:               6050,
		},
		Timestamp:          time.Date(2025, 3, 14, 10, 31, 0, 0, ist),
		PutDifference:      35,
		CallDifference:     -50,
		ChangePercentLabel: "Put Change OI is higher by 217631.75%",
		TrendBasis:         models.TrendBasisIntraday,
		BaseRatio:          decimal.RequireFromString("0.65"),
		Trend:              models.TrendBearish,
		Observation:        "Intraday PCR 0.65 indicates bearish trend.",
	}

	cells := codec.Encode(row)
	require.Len(t, cells, 18)
	assert.Equal(t, "2025-03-14 10:31:00 IST", cells[0])
	assert.Equal(t, "1,234,567", cells[1])
	assert.Equal(t, "35", cells[2])
	assert.Equal(t, "-567", cells[3])
	assert.Equal(t, "-50", cells[4])
	assert.Equal(t, "0.65", cells[6])
	assert.Equal(t, "Bearish Trend", cells[8])
	assert.Equal(t, "-35.50", cells[14])

	stored, err := codec.Decode(21, Row(cells))
	require.NoError(t, err)
	assert.Equal(t, 21, stored.Index)
	assert.True(t, stored.Timestamp.Equal(row.Timestamp))
	assert.Equal(t, models.TrendBearish, stored.Trend)
	assert.Equal(t, int64(1234567), stored.Record.IntradayPutOIChange)
	assert.Equal(t, int64(-567), stored.Record.IntradayCallOIChange)
	assert.True(t, stored.Record.PriceChange.Equal(row.PriceChange))
	assert.Empty(t, stored.Record.Defaulted)

	back := stored.Reconciled()
	assert.Equal(t, int64(35), back.PutDifference)
	assert.Equal(t, int64(-50), back.CallDifference)
	assert.Equal(t, row.ChangePercentLabel, back.ChangePercentLabel)
	assert.True(t, back.BaseRatio.Equal(row.BaseRatio))
	assert.Equal(t, row.Observation, back.Observation)
	assert.Equal(t, models.TrendBearish, back.Trend)
}

func TestCodec_Decode(t *testing.T) {
	codec := NewCodec(models.DefaultColumnLayout(), time.UTC)

	_, err := codec.Decode(18, Row{"not a time", "1", "", "2"})
	assert.Error(t, err)

	_, err = codec.Decode(18, Row{"2025-03-14 10:31:00 UTC", "", "", "2"})
	assert.Error(t, err)

	stored, err := codec.Decode(18, Row{"2025-03-14 10:31:00 UTC", "100", "", "-40"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), stored.Record.IntradayPutOIChange)
	assert.True(t, stored.Record.IsDefaulted(models.FieldTotalPutOI))
	assert.True(t, stored.Record.IsDefaulted(models.FieldOverallPCR))
}

func TestCodec_CustomLayout(t *testing.T) {
	layout, err := models.NewColumnLayout(map[string]string{"observation": "T", "base_pcr": "S"})
	require.NoError(t, err)
	codec := NewCodec(layout, time.UTC)

	cells := codec.Encode(models.ReconciledRow{Observation: "obs", BaseRatio: decimal.NewFromInt(1)})
	require.Len(t, cells, 20)
	assert.Equal(t, "obs", cells[19])
	assert.Equal(t, "1.00", cells[18])
	assert.Equal(t, "", cells[6])
}
