// Package format renders numeric fields the way they are stored in the
// persisted log and parses them back. Integers use thousands grouping and
// decimals use two fixed places; Parse* accepts everything Format* emits.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DecimalPlaces is the fixed precision of ratios, changes and percentages.
const DecimalPlaces = 2

// TimestampLayout is the stored timestamp layout; the zone abbreviation
// is appended after a single space.
const TimestampLayout = "2006-01-02 15:04:05"

var printer = message.NewPrinter(language.English)

// Int formats n with comma thousands grouping, e.g. -1234567 -> "-1,234,567".
func Int(n int64) string {
	return printer.Sprintf("%d", n)
}

// Decimal formats d with two fixed decimal places.
func Decimal(d decimal.Decimal) string {
	return d.StringFixed(DecimalPlaces)
}

// ParseInt reverses Int. Blank input is an error.
func ParseInt(s string) (int64, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	clean = strings.TrimPrefix(clean, "+")
	if clean == "" {
		return 0, fmt.Errorf("empty integer value")
	}
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse integer %q: %w", s, err)
	}
	return n, nil
}

// ParseDecimal reverses Decimal. A trailing percent sign is tolerated.
func ParseDecimal(s string) (decimal.Decimal, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	clean = strings.TrimSuffix(clean, "%")
	clean = strings.TrimPrefix(clean, "+")
	if clean == "" {
		return decimal.Zero, fmt.Errorf("empty decimal value")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

// Timestamp renders t truncated to the minute in loc, followed by the zone
// abbreviation, e.g. "2025-03-14 10:31:00 IST".
func Timestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc).Truncate(time.Minute)
	return local.Format(TimestampLayout + " MST")
}

// ParseTimestamp reverses Timestamp. The zone suffix is optional and
// ignored; the wall clock is interpreted in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	if len(s) > len(TimestampLayout) {
		s = strings.TrimSpace(s[:len(TimestampLayout)])
	}
	t, err := time.ParseInLocation(TimestampLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return t, nil
}

// MinuteBucket is the idempotence key for a cycle at t.
func MinuteBucket(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02T15:04")
}
