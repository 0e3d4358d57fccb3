// Package reconciler turns an extracted record into a persisted-log row by
// differencing against the previous observation and deriving the trend.
package reconciler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/irfndi/pcr-tracker-go/internal/format"
	"github.com/irfndi/pcr-tracker-go/internal/models"
	"github.com/irfndi/pcr-tracker-go/internal/utils"
)

// Default thresholds: ratios at or below BearishAt are bearish, at or
// above BullishAt bullish.
var (
	DefaultBearishAt = decimal.RequireFromString("0.8")
	DefaultBullishAt = decimal.RequireFromString("1.2")
)

// Config selects the classification basis and thresholds.
type Config struct {
	Basis     models.TrendBasis
	BearishAt decimal.Decimal
	BullishAt decimal.Decimal
	// Labels override the ratio name used in observation sentences.
	Labels map[models.TrendBasis]string
}

// DefaultConfig classifies on the intraday ratio with 0.8 / 1.2 thresholds.
func DefaultConfig() Config {
	return Config{
		Basis:     models.TrendBasisIntraday,
		BearishAt: DefaultBearishAt,
		BullishAt: DefaultBullishAt,
	}
}

// Reconciler is stateless; history arrives through the previous argument.
type Reconciler struct {
	basis     models.TrendBasis
	bearishAt decimal.Decimal
	bullishAt decimal.Decimal
	label     string
}

// New validates cfg and returns a Reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Basis == "" {
		cfg.Basis = models.TrendBasisIntraday
	}
	if !cfg.Basis.Valid() {
		return nil, fmt.Errorf("unknown trend basis %q", cfg.Basis)
	}
	if cfg.BearishAt.IsZero() && cfg.BullishAt.IsZero() {
		cfg.BearishAt, cfg.BullishAt = DefaultBearishAt, DefaultBullishAt
	}
	if !cfg.BearishAt.LessThan(cfg.BullishAt) {
		return nil, fmt.Errorf("bearish threshold %s must be below bullish threshold %s", cfg.BearishAt, cfg.BullishAt)
	}

	label := cfg.Labels[cfg.Basis]
	if label == "" {
		label = BasisLabel(cfg.Basis)
	}
	return &Reconciler{
		basis:     cfg.Basis,
		bearishAt: cfg.BearishAt,
		bullishAt: cfg.BullishAt,
		label:     label,
	}, nil
}

// BasisLabel is the default ratio name for b.
func BasisLabel(b models.TrendBasis) string {
	if b == models.TrendBasisOverall {
		return "Overall PCR"
	}
	return "Intraday PCR"
}

// Basis returns the configured classification basis.
func (r *Reconciler) Basis() models.TrendBasis {
	return r.basis
}

// Reconcile builds the row for current. previous is nil for the first
// observation of a session, in which case both differences are zero.
func (r *Reconciler) Reconcile(current models.ExtractedRecord, previous *models.ExtractedRecord, now time.Time) (models.ReconciledRow, error) {
	if err := Validate(current); err != nil {
		return models.ReconciledRow{}, err
	}

	row := models.ReconciledRow{
		ExtractedRecord: current,
		Timestamp:       now.Truncate(time.Minute),
		TrendBasis:      r.basis,
	}
	if previous != nil {
		row.PutDifference = current.IntradayPutOIChange - previous.IntradayPutOIChange
		row.CallDifference = current.IntradayCallOIChange - previous.IntradayCallOIChange
	}
	row.ChangePercentLabel = ChangePercentLabel(current.IntradayPutOIChange, current.IntradayCallOIChange)

	row.BaseRatio = r.baseRatio(current)
	row.Trend = r.Classify(row.BaseRatio)
	row.Observation = Observation(r.label, row.BaseRatio, row.Trend)
	return row, nil
}

func (r *Reconciler) baseRatio(rec models.ExtractedRecord) decimal.Decimal {
	if r.basis == models.TrendBasisOverall {
		return rec.OverallPCR
	}
	return rec.IntradayPCR
}

// Classify applies the three-way threshold to ratio.
func (r *Reconciler) Classify(ratio decimal.Decimal) models.Trend {
	switch {
	case ratio.LessThanOrEqual(r.bearishAt):
		return models.TrendBearish
	case ratio.GreaterThanOrEqual(r.bullishAt):
		return models.TrendBullish
	default:
		return models.TrendNeutral
	}
}

// ChangePercentLabel compares the magnitudes of the put and call changes.
func ChangePercentLabel(put, call int64) string {
	absPut, absCall := abs(put), abs(call)
	switch {
	case absPut > absCall:
		return fmt.Sprintf("Put Change OI is higher by %s%%", percentHigher(absPut, absCall))
	case absCall > absPut:
		return fmt.Sprintf("Call Change OI is higher by %s%%", percentHigher(absCall, absPut))
	default:
		return "Both are equal (0%)"
	}
}

// percentHigher is (larger-smaller)/smaller*100, or 0 when smaller is 0.
func percentHigher(larger, smaller int64) string {
	if smaller == 0 {
		return format.Decimal(decimal.Zero)
	}
	pct := decimal.NewFromInt(larger - smaller).
		Div(decimal.NewFromInt(smaller)).
		Mul(decimal.NewFromInt(100))
	return format.Decimal(pct)
}

// Observation renders "<label> <ratio> indicates <trend>.".
func Observation(label string, ratio decimal.Decimal, trend models.Trend) string {
	return fmt.Sprintf("%s %s indicates %s.", label, format.Decimal(ratio), trend.Lower())
}

// Validate is the invariant check that precedes reconciliation.
func Validate(rec models.ExtractedRecord) error {
	switch {
	case rec.TotalPutOI < 0:
		return utils.NewMalformedRecordErrorf(string(models.FieldTotalPutOI), "negative value %d", rec.TotalPutOI)
	case rec.TotalCallOI < 0:
		return utils.NewMalformedRecordErrorf(string(models.FieldTotalCallOI), "negative value %d", rec.TotalCallOI)
	case rec.OverallPCR.IsNegative():
		return utils.NewMalformedRecordErrorf(string(models.FieldOverallPCR), "negative ratio %s", rec.OverallPCR)
	case rec.UnderlyingPrice < 0:
		return utils.NewMalformedRecordErrorf(string(models.FieldUnderlyingPrice), "negative price %d", rec.UnderlyingPrice)
	case rec.DayHigh > 0 && rec.DayLow > 0 && rec.DayLow > rec.DayHigh:
		return utils.NewMalformedRecordErrorf(string(models.FieldDayLow), "day low %d above day high %d", rec.DayLow, rec.DayHigh)
	}
	return nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
