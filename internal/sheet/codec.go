package sheet

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/irfndi/pcr-tracker-go/internal/format"
	"github.com/irfndi/pcr-tracker-go/internal/models"
)

// Codec maps reconciled rows onto grid cells and back.
type Codec struct {
	Layout   models.ColumnLayout
	Location *time.Location
}

// NewCodec returns a codec for layout rendering timestamps in loc.
func NewCodec(layout models.ColumnLayout, loc *time.Location) Codec {
	if loc == nil {
		loc = time.UTC
	}
	return Codec{Layout: layout, Location: loc}
}

// StoredRow is a row read back from the log. Record carries the parsed
// numeric fields; Record.Defaulted lists the optional columns that were
// blank.
type StoredRow struct {
	Index     int
	Timestamp time.Time
	Trend     models.Trend
	Record    models.ExtractedRecord

	// Derived columns. They are never needed to reconcile the next row,
	// so blank or unreadable cells leave them zero instead of failing.
	PutDifference      int64
	CallDifference     int64
	ChangePercentLabel string
	BaseRatio          decimal.Decimal
	Observation        string
}

// Reconciled rebuilds the row as it was written.
func (s StoredRow) Reconciled() models.ReconciledRow {
	return models.ReconciledRow{
		ExtractedRecord:    s.Record,
		Timestamp:          s.Timestamp,
		PutDifference:      s.PutDifference,
		CallDifference:     s.CallDifference,
		ChangePercentLabel: s.ChangePercentLabel,
		BaseRatio:          s.BaseRatio,
		Trend:              s.Trend,
		Observation:        s.Observation,
	}
}

// Encode renders every field of row into its configured column.
func (c Codec) Encode(row models.ReconciledRow) []string {
	values := map[models.Field]string{
		models.FieldTimestamp:            format.Timestamp(row.Timestamp, c.Location),
		models.FieldIntradayPutOIChange:  format.Int(row.IntradayPutOIChange),
		models.FieldPutDifference:        format.Int(row.PutDifference),
		models.FieldIntradayCallOIChange: format.Int(row.IntradayCallOIChange),
		models.FieldCallDifference:       format.Int(row.CallDifference),
		models.FieldChangePercent:        row.ChangePercentLabel,
		models.FieldBasePCR:              format.Decimal(row.BaseRatio),
		models.FieldIntradayPCR:          format.Decimal(row.IntradayPCR),
		models.FieldTrend:                string(row.Trend),
		models.FieldObservation:          row.Observation,
		models.FieldTotalPutOI:           format.Int(row.TotalPutOI),
		models.FieldTotalCallOI:          format.Int(row.TotalCallOI),
		models.FieldOverallPCR:           format.Decimal(row.OverallPCR),
		models.FieldUnderlyingPrice:      format.Int(row.UnderlyingPrice),
		models.FieldPriceChange:          format.Decimal(row.PriceChange),
		models.FieldPriceChangePercent:   format.Decimal(row.PriceChangePercent),
		models.FieldDayHigh:              format.Int(row.DayHigh),
		models.FieldDayLow:               format.Int(row.DayLow),
	}
	out := make([]string, c.Layout.Width())
	for f, v := range values {
		out[c.Layout.Column(f)-1] = v
	}
	return out
}

// Decode parses a stored row. The timestamp and both intraday change
// columns are required; other numeric columns default to zero when blank.
func (c Codec) Decode(index int, row Row) (StoredRow, error) {
	out := StoredRow{Index: index}
	cell := func(f models.Field) string {
		return strings.TrimSpace(row.Get(c.Layout.Column(f)))
	}

	ts, err := format.ParseTimestamp(cell(models.FieldTimestamp), c.Location)
	if err != nil {
		return StoredRow{}, fmt.Errorf("row %d: %w", index, err)
	}
	out.Timestamp = ts

	rec := &out.Record
	required := []struct {
		field models.Field
		dst   *int64
	}{
		{models.FieldIntradayPutOIChange, &rec.IntradayPutOIChange},
		{models.FieldIntradayCallOIChange, &rec.IntradayCallOIChange},
	}
	for _, r := range required {
		n, err := format.ParseInt(cell(r.field))
		if err != nil {
			return StoredRow{}, fmt.Errorf("row %d %s: %w", index, r.field, err)
		}
		*r.dst = n
	}

	ints := []struct {
		field models.Field
		dst   *int64
	}{
		{models.FieldTotalPutOI, &rec.TotalPutOI},
		{models.FieldTotalCallOI, &rec.TotalCallOI},
		{models.FieldUnderlyingPrice, &rec.UnderlyingPrice},
		{models.FieldDayHigh, &rec.DayHigh},
		{models.FieldDayLow, &rec.DayLow},
	}
	for _, r := range ints {
		raw := cell(r.field)
		if raw == "" {
			rec.Defaulted = append(rec.Defaulted, r.field)
			continue
		}
		n, err := format.ParseInt(raw)
		if err != nil {
			return StoredRow{}, fmt.Errorf("row %d %s: %w", index, r.field, err)
		}
		*r.dst = n
	}

	decs := []struct {
		field models.Field
		dst   *decimal.Decimal
	}{
		{models.FieldIntradayPCR, &rec.IntradayPCR},
		{models.FieldOverallPCR, &rec.OverallPCR},
		{models.FieldPriceChange, &rec.PriceChange},
		{models.FieldPriceChangePercent, &rec.PriceChangePercent},
	}
	for _, r := range decs {
		raw := cell(r.field)
		if raw == "" {
			rec.Defaulted = append(rec.Defaulted, r.field)
			continue
		}
		d, err := format.ParseDecimal(raw)
		if err != nil {
			return StoredRow{}, fmt.Errorf("row %d %s: %w", index, r.field, err)
		}
		*r.dst = d
	}

	if trend, ok := models.ParseTrend(cell(models.FieldTrend)); ok {
		out.Trend = trend
	}

	if n, err := format.ParseInt(cell(models.FieldPutDifference)); err == nil {
		out.PutDifference = n
	}
	if n, err := format.ParseInt(cell(models.FieldCallDifference)); err == nil {
		out.CallDifference = n
	}
	if d, err := format.ParseDecimal(cell(models.FieldBasePCR)); err == nil {
		out.BaseRatio = d
	}
	out.ChangePercentLabel = cell(models.FieldChangePercent)
	out.Observation = cell(models.FieldObservation)
	return out, nil
}
