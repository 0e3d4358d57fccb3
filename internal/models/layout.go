package models

import (
	"fmt"
	"sort"
	"strings"
)

// Field names a column of the persisted log.
type Field string

const (
	FieldTimestamp            Field = "timestamp"
	FieldIntradayPutOIChange  Field = "intraday_put_oi_change"
	FieldPutDifference        Field = "put_difference"
	FieldIntradayCallOIChange Field = "intraday_call_oi_change"
	FieldCallDifference       Field = "call_difference"
	FieldChangePercent        Field = "change_percent"
	FieldBasePCR              Field = "base_pcr"
	FieldIntradayPCR          Field = "intraday_pcr"
	FieldTrend                Field = "trend"
	FieldObservation          Field = "observation"
	FieldTotalPutOI           Field = "total_put_oi"
	FieldTotalCallOI          Field = "total_call_oi"
	FieldOverallPCR           Field = "overall_pcr"
	FieldUnderlyingPrice      Field = "underlying_price"
	FieldPriceChange          Field = "price_change"
	FieldPriceChangePercent   Field = "price_change_percent"
	FieldDayHigh              Field = "day_high"
	FieldDayLow               Field = "day_low"
)

// RowFields lists every persisted field in default column order (A..R).
var RowFields = []Field{
	FieldTimestamp,
	FieldIntradayPutOIChange,
	FieldPutDifference,
	FieldIntradayCallOIChange,
	FieldCallDifference,
	FieldChangePercent,
	FieldBasePCR,
	FieldIntradayPCR,
	FieldTrend,
	FieldObservation,
	FieldTotalPutOI,
	FieldTotalCallOI,
	FieldOverallPCR,
	FieldUnderlyingPrice,
	FieldPriceChange,
	FieldPriceChangePercent,
	FieldDayHigh,
	FieldDayLow,
}

var headerLabels = map[Field]string{
	FieldTimestamp:            "Timestamp",
	FieldIntradayPutOIChange:  "Intraday Put Change OI",
	FieldPutDifference:        "Put Difference",
	FieldIntradayCallOIChange: "Intraday Call Change OI",
	FieldCallDifference:       "Call Difference",
	FieldChangePercent:        "Change %",
	FieldBasePCR:              "COI PCR",
	FieldIntradayPCR:          "Intraday PCR",
	FieldTrend:                "Trend",
	FieldObservation:          "Observation",
	FieldTotalPutOI:           "Total Put OI",
	FieldTotalCallOI:          "Total Call OI",
	FieldOverallPCR:           "Overall PCR",
	FieldUnderlyingPrice:      "Underlying Price",
	FieldPriceChange:          "Price Change",
	FieldPriceChangePercent:   "Price % Change",
	FieldDayHigh:              "Day High",
	FieldDayLow:               "Day Low",
}

// HeaderLabel returns the human readable column title for f.
func HeaderLabel(f Field) string {
	return headerLabels[f]
}

// ColumnLayout maps each persisted field to its 1-based column index.
type ColumnLayout struct {
	columns map[Field]int
	width   int
}

// DefaultColumnLayout places RowFields in columns A..R.
func DefaultColumnLayout() ColumnLayout {
	cols := make(map[Field]int, len(RowFields))
	for i, f := range RowFields {
		cols[f] = i + 1
	}
	return ColumnLayout{columns: cols, width: len(RowFields)}
}

// NewColumnLayout builds a layout from field -> column letter overrides on
// top of the default layout and validates the result.
func NewColumnLayout(overrides map[string]string) (ColumnLayout, error) {
	layout := DefaultColumnLayout()
	for name, letter := range overrides {
		f := Field(strings.ToLower(strings.TrimSpace(name)))
		if _, ok := headerLabels[f]; !ok {
			return ColumnLayout{}, fmt.Errorf("unknown column field %q", name)
		}
		idx, err := ColumnIndex(letter)
		if err != nil {
			return ColumnLayout{}, fmt.Errorf("column for %s: %w", name, err)
		}
		layout.columns[f] = idx
	}
	layout.width = 0
	for _, col := range layout.columns {
		if col > layout.width {
			layout.width = col
		}
	}
	if err := layout.Validate(); err != nil {
		return ColumnLayout{}, err
	}
	return layout, nil
}

// Validate checks that every field has a distinct column.
func (l ColumnLayout) Validate() error {
	seen := make(map[int]Field, len(l.columns))
	width := 0
	for _, f := range RowFields {
		col, ok := l.columns[f]
		if !ok || col < 1 {
			return fmt.Errorf("field %s has no column", f)
		}
		if other, dup := seen[col]; dup {
			return fmt.Errorf("fields %s and %s share column %s", other, f, ColumnLetter(col))
		}
		seen[col] = f
		if col > width {
			width = col
		}
	}
	if width != l.width {
		return fmt.Errorf("layout width %d does not match highest column %d", l.width, width)
	}
	return nil
}

// Column returns the 1-based column index of f, or 0 when f is unknown.
func (l ColumnLayout) Column(f Field) int {
	return l.columns[f]
}

// Width is the highest column index in use.
func (l ColumnLayout) Width() int {
	return l.width
}

// Fields returns the fields ordered by column.
func (l ColumnLayout) Fields() []Field {
	out := make([]Field, 0, len(l.columns))
	for f := range l.columns {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return l.columns[out[i]] < l.columns[out[j]] })
	return out
}

// Header returns a row of column titles laid out by l.
func (l ColumnLayout) Header() []string {
	row := make([]string, l.width)
	for f, col := range l.columns {
		row[col-1] = headerLabels[f]
	}
	return row
}

// ColumnLetter converts a 1-based column index into spreadsheet notation.
func ColumnLetter(col int) string {
	if col < 1 {
		return ""
	}
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// ColumnIndex converts spreadsheet notation ("A", "AB") into a 1-based index.
func ColumnIndex(letter string) (int, error) {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if letter == "" {
		return 0, fmt.Errorf("empty column letter")
	}
	idx := 0
	for _, r := range letter {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column letter %q", letter)
		}
		idx = idx*26 + int(r-'A'+1)
	}
	return idx, nil
}
