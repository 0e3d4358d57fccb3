package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrend_Lower(t *testing.T) {
	assert.Equal(t, "bearish trend", TrendBearish.Lower())
	assert.Equal(t, "neutral trend", TrendNeutral.Lower())
	assert.Equal(t, "bullish trend", TrendBullish.Lower())
}

func TestParseTrend(t *testing.T) {
	tr, ok := ParseTrend(" Bullish Trend ")
	assert.True(t, ok)
	assert.Equal(t, TrendBullish, tr)

	_, ok = ParseTrend("Sideways")
	assert.False(t, ok)
}

func TestTrendBasis_Valid(t *testing.T) {
	assert.True(t, TrendBasisIntraday.Valid())
	assert.True(t, TrendBasisOverall.Valid())
	assert.False(t, TrendBasis("coi").Valid())
}

func TestExtractedRecord_IsDefaulted(t *testing.T) {
	rec := ExtractedRecord{Defaulted: []Field{FieldDayHigh}}
	assert.True(t, rec.IsDefaulted(FieldDayHigh))
	assert.False(t, rec.IsDefaulted(FieldDayLow))
}

func TestDefaultColumnLayout(t *testing.T) {
	layout := DefaultColumnLayout()
	require.NoError(t, layout.Validate())

	assert.Equal(t, 18, layout.Width())
	assert.Equal(t, 1, layout.Column(FieldTimestamp))
	assert.Equal(t, 7, layout.Column(FieldBasePCR))
	assert.Equal(t, 8, layout.Column(FieldIntradayPCR))
	assert.Equal(t, 13, layout.Column(FieldOverallPCR))
	assert.Equal(t, 18, layout.Column(FieldDayLow))
	assert.Equal(t, RowFields, layout.Fields())

	header := layout.Header()
	assert.Equal(t, "Timestamp", header[0])
	assert.Equal(t, "Day Low", header[17])
}

func TestNewColumnLayout(t *testing.T) {
	t.Run("swap two columns", func(t *testing.T) {
		layout, err := NewColumnLayout(map[string]string{
			"base_pcr":     "H",
			"intraday_pcr": "G",
		})
		require.NoError(t, err)
		assert.Equal(t, 8, layout.Column(FieldBasePCR))
		assert.Equal(t, 7, layout.Column(FieldIntradayPCR))
		assert.Equal(t, "Intraday PCR", layout.Header()[6])
	})

	t.Run("move to a wider column", func(t *testing.T) {
		layout, err := NewColumnLayout(map[string]string{"observation": "T"})
		require.NoError(t, err)
		assert.Equal(t, 20, layout.Width())
		assert.Equal(t, "", layout.Header()[9])
	})

	t.Run("duplicate column", func(t *testing.T) {
		_, err := NewColumnLayout(map[string]string{"trend": "A"})
		assert.Error(t, err)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := NewColumnLayout(map[string]string{"volume": "S"})
		assert.Error(t, err)
	})

	t.Run("bad letter", func(t *testing.T) {
		_, err := NewColumnLayout(map[string]string{"trend": "1"})
		assert.Error(t, err)
	})
}

func TestColumnLetterRoundTrip(t *testing.T) {
	cases := map[int]string{1: "A", 18: "R", 26: "Z", 27: "AA", 52: "AZ", 703: "AAA"}
	for idx, letter := range cases {
		assert.Equal(t, letter, ColumnLetter(idx))
		got, err := ColumnIndex(letter)
		require.NoError(t, err)
		assert.Equal(t, idx, got)
	}
	assert.Equal(t, "", ColumnLetter(0))
}
