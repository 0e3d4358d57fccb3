package extractor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/pcr-tracker-go/internal/models"
)

const samplePage = `
CRUDEOILM Put Call Ratio Live
LTP ₹5,812.00 +45.00 (+0.78%)
Day High 5,840 Day Low 5,760
Intraday Put Change OI +12,450
Intraday Call Change OI −8,300
Intraday PCR 1.50
Total Put OI 145,000
Total Call OI 1,20,500
Overall PCR 0.92
`

func TestExtract_SamplePage(t *testing.T) {
	rec := NewDefault().Extract(samplePage)

	assert.Equal(t, int64(12450), rec.IntradayPutOIChange)
	assert.Equal(t, int64(-8300), rec.IntradayCallOIChange)
	assert.Equal(t, "1.5", rec.IntradayPCR.String())
	assert.Equal(t, int64(145000), rec.TotalPutOI)
	assert.Equal(t, int64(120500), rec.TotalCallOI)
	assert.Equal(t, "0.92", rec.OverallPCR.String())
	assert.Equal(t, int64(5812), rec.UnderlyingPrice)
	assert.Equal(t, "45", rec.PriceChange.String())
	assert.Equal(t, "0.78", rec.PriceChangePercent.String())
	assert.Equal(t, int64(5840), rec.DayHigh)
	assert.Equal(t, int64(5760), rec.DayLow)
	assert.Empty(t, rec.Defaulted)
}

func TestExtract_DefaultCompleteness(t *testing.T) {
	inputs := []string{"", "   ", "no numbers here", "<html><body></body></html>", "PCR PCR PCR"}
	for _, in := range inputs {
		rec := NewDefault().Extract(in)

		assert.Zero(t, rec.IntradayPutOIChange)
		assert.Zero(t, rec.IntradayCallOIChange)
		assert.True(t, rec.IntradayPCR.Equal(decimal.Zero))
		assert.True(t, rec.OverallPCR.Equal(decimal.Zero))
		assert.True(t, rec.PriceChange.Equal(decimal.Zero))
		assert.True(t, rec.PriceChangePercent.Equal(decimal.Zero))
		assert.Zero(t, rec.TotalPutOI)
		assert.Zero(t, rec.TotalCallOI)
		assert.Zero(t, rec.UnderlyingPrice)
		assert.Zero(t, rec.DayHigh)
		assert.Zero(t, rec.DayLow)
		assert.Len(t, rec.Defaulted, 11, "input %q", in)
	}
}

func TestExtract_ShortLabels(t *testing.T) {
	rec := NewDefault().Extract("Put OI Chg 1,234 | Call OI Chg -567 | Intraday PCR 0.65")

	assert.Equal(t, int64(1234), rec.IntradayPutOIChange)
	assert.Equal(t, int64(-567), rec.IntradayCallOIChange)
	assert.Equal(t, "0.65", rec.IntradayPCR.String())
	assert.False(t, rec.IsDefaulted(models.FieldIntradayPutOIChange))
	assert.True(t, rec.IsDefaulted(models.FieldOverallPCR))
}

func TestExtract_SignIsTakenFromText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int64
	}{
		{"explicit plus", "Call Change OI +2,000", 2000},
		{"no sign", "Call Change OI 2,000", 2000},
		{"ascii minus", "Call Change OI -2,000", -2000},
		{"unicode minus", "Call Change OI −2,000", -2000},
		{"spaced sign", "Call Change OI - 2,000", -2000},
		{"lowercase label", "call oi change: -75", -75},
		{"value before label", "-310 Call OI Change", -310},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewDefault().Extract(tt.text)
			assert.Equal(t, tt.want, rec.IntradayCallOIChange)
		})
	}
}

func TestExtract_PrimaryPatternWins(t *testing.T) {
	text := "Put Change OI 10 ... Intraday Put Change OI 20"
	rec := NewDefault().Extract(text)
	assert.Equal(t, int64(20), rec.IntradayPutOIChange)
}

func TestExtract_IntradayAndOverallKeptApart(t *testing.T) {
	rec := NewDefault().Extract("Overall PCR 1.31 Intraday PCR 0.44")
	assert.Equal(t, "0.44", rec.IntradayPCR.String())
	assert.Equal(t, "1.31", rec.OverallPCR.String())
}

func TestExtract_RangeRejection(t *testing.T) {
	rep := NewDefault().ExtractReport("Day High 99999 Day Low 5,700")

	assert.Equal(t, int64(0), rep.Record.DayHigh)
	assert.True(t, rep.Record.IsDefaulted(models.FieldDayHigh))
	assert.Equal(t, int64(5700), rep.Record.DayLow)

	var high FieldOutcome
	for _, o := range rep.Outcomes {
		if o.Field == models.FieldDayHigh {
			high = o
		}
	}
	assert.True(t, high.Rejected)
	assert.Equal(t, "99999", high.Raw)
	assert.Contains(t, high.Reason, "outside")
}

func TestExtract_RangeScanFallback(t *testing.T) {
	rep := NewDefault().ExtractReport("Quote 1234 99999 6,050 then ₹ 6,120 more")

	assert.Equal(t, int64(6120), rep.Record.UnderlyingPrice, "anchor-adjacent candidate preferred")
	assert.Equal(t, int64(6050), rep.Record.DayHigh, "first candidate when no anchor")

	for _, o := range rep.Outcomes {
		if o.Field == models.FieldUnderlyingPrice {
			assert.Equal(t, "price range scan", o.Strategy)
		}
	}
}

func TestExtract_ScannedHighBelowLabelledLow(t *testing.T) {
	page := "Prev Close 5,780\nCrude Oil 5,900\nDay Low 5,850\nPut OI Chg 1,234\nCall OI Chg -567\nIntraday PCR 0.65"
	rep := NewDefault().ExtractReport(page)

	assert.Equal(t, int64(0), rep.Record.DayHigh)
	assert.True(t, rep.Record.IsDefaulted(models.FieldDayHigh))
	assert.Equal(t, int64(5850), rep.Record.DayLow)
	assert.False(t, rep.Record.IsDefaulted(models.FieldDayLow))
	assert.Equal(t, int64(5900), rep.Record.UnderlyingPrice)

	for _, o := range rep.Outcomes {
		if o.Field == models.FieldDayHigh {
			assert.Equal(t, "high range scan", o.Strategy)
			assert.True(t, o.Rejected)
			assert.Contains(t, o.Reason, "above day high")
		}
	}
}

func TestExtract_LabelledHighLowInconsistent(t *testing.T) {
	rec := NewDefault().Extract("Day High 5,700 Day Low 5,900")

	assert.Equal(t, int64(0), rec.DayHigh)
	assert.Equal(t, int64(0), rec.DayLow)
	assert.True(t, rec.IsDefaulted(models.FieldDayHigh))
	assert.True(t, rec.IsDefaulted(models.FieldDayLow))
}

func TestRangeScanStrategy(t *testing.T) {
	s := &RangeScanStrategy{Label: "scan", Band: Band{Min: 5000, Max: 7000}, Anchors: []string{"high"}}

	_, ok := s.Match("nothing 12 123 99999")
	assert.False(t, ok)

	v, ok := s.Match("5,100.50 and high 6,900")
	assert.True(t, ok)
	assert.Equal(t, "6900", v)
}

func TestNew_ExtraPatterns(t *testing.T) {
	e, err := New(Config{
		Band: Band{Min: 4000, Max: 9000},
		ExtraPatterns: map[models.Field][]string{
			models.FieldIntradayPCR: {`Ratio\(intra\)=([0-9.]+)`},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Band{Min: 4000, Max: 9000}, e.Band())

	rec := e.Extract("Ratio(intra)=1.05 Intraday PCR 0.50")
	assert.Equal(t, "1.05", rec.IntradayPCR.String())
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{Band: Band{Min: 9000, Max: 1000}})
	assert.Error(t, err)

	_, err = New(Config{ExtraPatterns: map[models.Field][]string{models.FieldDayHigh: {`(`}}})
	assert.Error(t, err)

	_, err = New(Config{ExtraPatterns: map[models.Field][]string{models.FieldDayHigh: {`High`}}})
	assert.Error(t, err)
}

func TestNew_ZeroBandUsesDefault(t *testing.T) {
	e, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBand, e.Band())
}
