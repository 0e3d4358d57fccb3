package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Trend is the sentiment label derived from a put-call ratio.
type Trend string

const (
	TrendBearish Trend = "Bearish Trend"
	TrendNeutral Trend = "Neutral Trend"
	TrendBullish Trend = "Bullish Trend"
)

// Lower returns the label as it appears inside observation sentences.
func (t Trend) Lower() string {
	return strings.ToLower(string(t))
}

// ParseTrend maps a stored label back to a Trend. Unknown labels return false.
func ParseTrend(s string) (Trend, bool) {
	switch Trend(strings.TrimSpace(s)) {
	case TrendBearish:
		return TrendBearish, true
	case TrendNeutral:
		return TrendNeutral, true
	case TrendBullish:
		return TrendBullish, true
	}
	return "", false
}

// TrendBasis selects which ratio drives trend classification.
type TrendBasis string

const (
	TrendBasisIntraday TrendBasis = "intraday"
	TrendBasisOverall  TrendBasis = "overall"
)

// Valid reports whether b is a known basis.
func (b TrendBasis) Valid() bool {
	return b == TrendBasisIntraday || b == TrendBasisOverall
}

// ExtractedRecord is the typed result of one extraction pass over a page.
// Every field holds a value; fields no pattern matched keep their zero
// default and are listed in Defaulted.
type ExtractedRecord struct {
	IntradayPutOIChange  int64           `json:"intraday_put_oi_change"`
	IntradayCallOIChange int64           `json:"intraday_call_oi_change"`
	IntradayPCR          decimal.Decimal `json:"intraday_pcr"`
	TotalPutOI           int64           `json:"total_put_oi"`
	TotalCallOI          int64           `json:"total_call_oi"`
	OverallPCR           decimal.Decimal `json:"overall_pcr"`
	UnderlyingPrice      int64           `json:"underlying_price"`
	PriceChange          decimal.Decimal `json:"price_change"`
	PriceChangePercent   decimal.Decimal `json:"price_change_percent"`
	DayHigh              int64           `json:"day_high"`
	DayLow               int64           `json:"day_low"`

	// Defaulted lists the fields that fell back to their default value.
	Defaulted []Field `json:"defaulted,omitempty"`
}

// IsDefaulted reports whether f fell back to its default during extraction.
func (r *ExtractedRecord) IsDefaulted(f Field) bool {
	for _, d := range r.Defaulted {
		if d == f {
			return true
		}
	}
	return false
}

// ReconciledRow is an ExtractedRecord enriched with deltas against the
// previous observation and the derived sentiment fields. It maps one to
// one onto a row of the persisted log.
type ReconciledRow struct {
	ExtractedRecord

	Timestamp          time.Time       `json:"timestamp"`
	PutDifference      int64           `json:"put_difference"`
	CallDifference     int64           `json:"call_difference"`
	ChangePercentLabel string          `json:"change_percent_label"`
	TrendBasis         TrendBasis      `json:"trend_basis"`
	BaseRatio          decimal.Decimal `json:"base_ratio"`
	Trend              Trend           `json:"trend"`
	Observation        string          `json:"observation"`
}
