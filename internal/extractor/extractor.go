// Package extractor turns the text of the options page into a fully
// populated ExtractedRecord. Each field is resolved by an ordered list of
// strategies; the first that matches wins, bounded fields are range checked
// afterwards, and anything unresolved keeps its zero default.
package extractor

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/irfndi/pcr-tracker-go/internal/models"
)

// DefaultBand is the plausible trading range of the instrument.
var DefaultBand = Band{Min: 5000, Max: 7000}

// Config tunes the extractor.
type Config struct {
	Band Band
	// ExtraPatterns are tried before the built-in strategies of a field.
	ExtraPatterns map[models.Field][]string
}

// Extractor resolves page text into records. It is safe for concurrent use.
type Extractor struct {
	band  Band
	rules []FieldRule
}

// FieldOutcome describes how one field was resolved.
type FieldOutcome struct {
	Field    models.Field `json:"field"`
	Strategy string       `json:"strategy,omitempty"`
	Raw      string       `json:"raw,omitempty"`
	Rejected bool         `json:"rejected,omitempty"`
	Reason   string       `json:"reason,omitempty"`

	scanned bool
}

// Report is the record together with per-field diagnostics.
type Report struct {
	Record   models.ExtractedRecord `json:"record"`
	Outcomes []FieldOutcome         `json:"outcomes"`
}

// New builds an extractor from cfg. Only invalid extra patterns fail.
func New(cfg Config) (*Extractor, error) {
	band := cfg.Band
	if band.Min == 0 && band.Max == 0 {
		band = DefaultBand
	}
	if band.Min > band.Max {
		return nil, fmt.Errorf("invalid price band [%d, %d]", band.Min, band.Max)
	}

	rules := DefaultRules(band)
	for i := range rules {
		extra := cfg.ExtraPatterns[rules[i].Field]
		if len(extra) == 0 {
			continue
		}
		custom := make([]Strategy, 0, len(extra)+len(rules[i].Strategies))
		for j, expr := range extra {
			s, err := NewRegexStrategy(fmt.Sprintf("custom %s #%d", rules[i].Field, j+1), expr)
			if err != nil {
				return nil, err
			}
			if s.Pattern.NumSubexp() < 1 {
				return nil, fmt.Errorf("custom %s pattern %q has no capture group", rules[i].Field, expr)
			}
			custom = append(custom, s)
		}
		rules[i].Strategies = append(custom, rules[i].Strategies...)
	}

	return &Extractor{band: band, rules: rules}, nil
}

// NewDefault returns an extractor with the built-in table and DefaultBand.
func NewDefault() *Extractor {
	return &Extractor{band: DefaultBand, rules: DefaultRules(DefaultBand)}
}

// Band returns the price band used for range validation.
func (e *Extractor) Band() Band {
	return e.band
}

// Extract never fails: unmatched or rejected fields keep their default and
// are listed in Defaulted.
func (e *Extractor) Extract(text string) models.ExtractedRecord {
	return e.ExtractReport(text).Record
}

// ExtractReport is Extract plus per-field diagnostics.
func (e *Extractor) ExtractReport(text string) Report {
	var rec models.ExtractedRecord
	rec.IntradayPCR = decimal.Zero
	rec.OverallPCR = decimal.Zero
	rec.PriceChange = decimal.Zero
	rec.PriceChangePercent = decimal.Zero

	outcomes := make([]FieldOutcome, 0, len(e.rules))
	for _, rule := range e.rules {
		outcomes = append(outcomes, e.resolve(rule, text, &rec))
	}
	checkDayRange(&rec, outcomes)
	for _, out := range outcomes {
		if out.Strategy == "" || out.Rejected {
			rec.Defaulted = append(rec.Defaulted, out.Field)
		}
	}
	return Report{Record: rec, Outcomes: outcomes}
}

// checkDayRange drops a day high/low pair that cannot both be right. A
// value found by range scan is dropped first; when both were labelled,
// both are dropped.
func checkDayRange(rec *models.ExtractedRecord, outcomes []FieldOutcome) {
	if rec.DayHigh == 0 || rec.DayLow == 0 || rec.DayLow <= rec.DayHigh {
		return
	}
	var high, low *FieldOutcome
	for i := range outcomes {
		switch outcomes[i].Field {
		case models.FieldDayHigh:
			high = &outcomes[i]
		case models.FieldDayLow:
			low = &outcomes[i]
		}
	}
	if high == nil || low == nil {
		return
	}
	reason := fmt.Sprintf("day low %d above day high %d", rec.DayLow, rec.DayHigh)
	dropHigh, dropLow := high.scanned, low.scanned
	if dropHigh == dropLow {
		dropHigh, dropLow = true, true
	}
	if dropHigh {
		rec.DayHigh = 0
		high.Rejected, high.Reason = true, reason
	}
	if dropLow {
		rec.DayLow = 0
		low.Rejected, low.Reason = true, reason
	}
}

func (e *Extractor) resolve(rule FieldRule, text string, rec *models.ExtractedRecord) FieldOutcome {
	out := FieldOutcome{Field: rule.Field}
	for _, s := range rule.Strategies {
		raw, ok := s.Match(text)
		if !ok {
			continue
		}
		out.Strategy = s.Name()
		out.Raw = raw
		_, out.scanned = s.(*RangeScanStrategy)

		switch rule.Kind {
		case KindInt:
			n, err := parseInt(raw)
			if err != nil {
				out.Rejected, out.Reason = true, err.Error()
				return out
			}
			if rule.Bounded && !e.band.Contains(n) {
				out.Rejected = true
				out.Reason = fmt.Sprintf("%d outside [%d, %d]", n, e.band.Min, e.band.Max)
				return out
			}
			setInt(rec, rule.Field, n)
		case KindDecimal:
			d, err := parseDecimal(raw)
			if err != nil {
				out.Rejected, out.Reason = true, err.Error()
				return out
			}
			setDecimal(rec, rule.Field, d)
		}
		return out
	}
	out.Reason = "no pattern matched"
	return out
}

func normalize(raw string) string {
	r := strings.NewReplacer(",", "", " ", "", "−", "-", "+", "")
	return r.Replace(strings.TrimSpace(raw))
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(normalize(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %q: %w", raw, err)
	}
	return d, nil
}

// parseInt accepts "5,812.00" style values and keeps the integer part.
func parseInt(raw string) (int64, error) {
	d, err := parseDecimal(raw)
	if err != nil {
		return 0, err
	}
	return d.IntPart(), nil
}

func setInt(rec *models.ExtractedRecord, f models.Field, n int64) {
	switch f {
	case models.FieldIntradayPutOIChange:
		rec.IntradayPutOIChange = n
	case models.FieldIntradayCallOIChange:
		rec.IntradayCallOIChange = n
	case models.FieldTotalPutOI:
		rec.TotalPutOI = n
	case models.FieldTotalCallOI:
		rec.TotalCallOI = n
	case models.FieldUnderlyingPrice:
		rec.UnderlyingPrice = n
	case models.FieldDayHigh:
		rec.DayHigh = n
	case models.FieldDayLow:
		rec.DayLow = n
	}
}

func setDecimal(rec *models.ExtractedRecord, f models.Field, d decimal.Decimal) {
	switch f {
	case models.FieldIntradayPCR:
		rec.IntradayPCR = d
	case models.FieldOverallPCR:
		rec.OverallPCR = d
	case models.FieldPriceChange:
		rec.PriceChange = d
	case models.FieldPriceChangePercent:
		rec.PriceChangePercent = d
	}
}
