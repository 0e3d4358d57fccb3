package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/irfndi/pcr-tracker-go/internal/models"
)

// Value fragments shared by the default patterns. Signs may be ASCII or the
// unicode minus some pages render, optionally followed by one space.
const (
	signedInt   = `([+\-\x{2212}]?\s?(?:\d{1,3}(?:,\d{2,3})+|\d+))`
	unsignedInt = `((?:\d{1,3}(?:,\d{2,3})+|\d+))`
	signedDec   = `([+\-\x{2212}]?\s?\d+(?:\.\d+)?)`
	priceNum    = `(\d{1,2},\d{3}(?:\.\d+)?|\d{4,5}(?:\.\d+)?)`
	sep         = `\s*[:=]?\s*`
	rupee       = `(?:₹|rs\.?|inr)?\s*`
)

// Strategy finds the raw text of a single field value.
type Strategy interface {
	Name() string
	Match(text string) (string, bool)
}

// RegexStrategy captures the first match of Pattern's capture group.
type RegexStrategy struct {
	Label   string
	Pattern *regexp.Regexp
	Group   int
}

// NewRegexStrategy compiles expr into a strategy capturing group 1.
func NewRegexStrategy(label, expr string) (*RegexStrategy, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile %s pattern: %w", label, err)
	}
	return &RegexStrategy{Label: label, Pattern: re, Group: 1}, nil
}

func mustRegex(label, expr string) *RegexStrategy {
	s, err := NewRegexStrategy(label, expr)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *RegexStrategy) Name() string { return s.Label }

func (s *RegexStrategy) Match(text string) (string, bool) {
	m := s.Pattern.FindStringSubmatch(text)
	if m == nil || len(m) <= s.Group || m[s.Group] == "" {
		return "", false
	}
	return m[s.Group], true
}

// RangeScanStrategy is the last resort for price-like fields: it collects
// every 4-5 digit number inside Band and prefers the first one preceded by
// an anchor token, else the first candidate overall.
type RangeScanStrategy struct {
	Label   string
	Band    Band
	Anchors []string
	// Window is how many bytes before a number are searched for an anchor.
	Window int
}

var numberToken = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

func (s *RangeScanStrategy) Name() string { return s.Label }

func (s *RangeScanStrategy) Match(text string) (string, bool) {
	window := s.Window
	if window <= 0 {
		window = 24
	}
	var first string
	for _, loc := range numberToken.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		whole := strings.ReplaceAll(raw, ",", "")
		if dot := strings.IndexByte(whole, '.'); dot >= 0 {
			whole = whole[:dot]
		}
		if len(whole) < 4 || len(whole) > 5 {
			continue
		}
		n, err := strconv.ParseInt(whole, 10, 64)
		if err != nil || !s.Band.Contains(n) {
			continue
		}
		if first == "" {
			first = whole
		}
		start := loc[0] - window
		if start < 0 {
			start = 0
		}
		before := strings.ToLower(text[start:loc[0]])
		for _, anchor := range s.Anchors {
			if strings.Contains(before, strings.ToLower(anchor)) {
				return whole, true
			}
		}
	}
	return first, first != ""
}

// Band is the inclusive plausible range for price-like fields.
type Band struct {
	Min int64
	Max int64
}

// Contains reports whether n lies inside the band.
func (b Band) Contains(n int64) bool {
	return n >= b.Min && n <= b.Max
}

// ValueKind controls how a matched string is converted.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindDecimal
)

// FieldRule is the ordered strategy list for one field. First match wins.
type FieldRule struct {
	Field      models.Field
	Kind       ValueKind
	Bounded    bool
	Strategies []Strategy
}

// DefaultRules returns the built-in pattern table.
func DefaultRules(band Band) []FieldRule {
	return []FieldRule{
		{
			Field: models.FieldIntradayPutOIChange,
			Kind:  KindInt,
			Strategies: []Strategy{
				mustRegex("intraday put change oi", `Intraday\s*Put\s*Change\s*OI`+sep+signedInt),
				mustRegex("put change oi", `Put\s*Change\s*OI`+sep+signedInt),
				mustRegex("put oi chg", `Put\s*OI\s*(?:Chg|Change)\.?`+sep+signedInt),
				mustRegex("put change loose", `(?i)\bput\s*(?:oi\s*)?(?:change|chg)\.?\s*(?:oi)?[^\d+\-\x{2212}]{0,12}`+signedInt),
				mustRegex("put change reordered", `(?i)`+signedInt+`\s*(?:intraday\s*)?put\s*(?:change\s*oi|oi\s*(?:change|chg))`),
			},
		},
		{
			Field: models.FieldIntradayCallOIChange,
			Kind:  KindInt,
			Strategies: []Strategy{
				mustRegex("intraday call change oi", `Intraday\s*Call\s*Change\s*OI`+sep+signedInt),
				mustRegex("call change oi", `Call\s*Change\s*OI`+sep+signedInt),
				mustRegex("call oi chg", `Call\s*OI\s*(?:Chg|Change)\.?`+sep+signedInt),
				mustRegex("call change loose", `(?i)\bcall\s*(?:oi\s*)?(?:change|chg)\.?\s*(?:oi)?[^\d+\-\x{2212}]{0,12}`+signedInt),
				mustRegex("call change reordered", `(?i)`+signedInt+`\s*(?:intraday\s*)?call\s*(?:change\s*oi|oi\s*(?:change|chg))`),
			},
		},
		{
			Field: models.FieldIntradayPCR,
			Kind:  KindDecimal,
			Strategies: []Strategy{
				mustRegex("intraday pcr", `Intraday\s*PCR`+sep+signedDec),
				mustRegex("intraday put call ratio", `(?i)intraday\s*put[\s-]*call\s*ratio`+sep+signedDec),
				mustRegex("pcr (intraday)", `(?i)\bpcr\s*\(\s*intraday\s*\)`+sep+signedDec),
				mustRegex("intraday pcr reordered", `(?i)`+signedDec+`\s*intraday\s*pcr`),
			},
		},
		{
			Field: models.FieldTotalPutOI,
			Kind:  KindInt,
			Strategies: []Strategy{
				mustRegex("total put oi", `Total\s*Put\s*OI`+sep+unsignedInt),
				mustRegex("total put open interest", `(?i)total\s*put\s*(?:open\s*interest|oi)[^\d]{0,10}`+unsignedInt),
				mustRegex("total put oi reordered", `(?i)`+unsignedInt+`\s*total\s*put\s*oi`),
			},
		},
		{
			Field: models.FieldTotalCallOI,
			Kind:  KindInt,
			Strategies: []Strategy{
				mustRegex("total call oi", `Total\s*Call\s*OI`+sep+unsignedInt),
				mustRegex("total call open interest", `(?i)total\s*call\s*(?:open\s*interest|oi)[^\d]{0,10}`+unsignedInt),
				mustRegex("total call oi reordered", `(?i)`+unsignedInt+`\s*total\s*call\s*oi`),
			},
		},
		{
			Field: models.FieldOverallPCR,
			Kind:  KindDecimal,
			Strategies: []Strategy{
				mustRegex("overall pcr", `Overall\s*PCR`+sep+signedDec),
				mustRegex("total pcr", `(?i)\b(?:total|overall|base|cumulative)\s*(?:pcr|put[\s-]*call\s*ratio)`+sep+signedDec),
				mustRegex("pcr (oi)", `(?i)\bpcr\s*\(\s*(?:oi|overall|total)\s*\)`+sep+signedDec),
			},
		},
		{
			Field:   models.FieldUnderlyingPrice,
			Kind:    KindInt,
			Bounded: true,
			Strategies: []Strategy{
				mustRegex("underlying price", `(?i)\b(?:underlying|spot|ltp|last\s*traded\s*price|future\s*price)\s*(?:price|value)?`+sep+rupee+priceNum),
				mustRegex("instrument price", `(?i)\bcrude\s*oil(?:\s*mini|m)?\s*(?:fut(?:ure)?s?)?`+sep+rupee+priceNum),
				&RangeScanStrategy{Label: "price range scan", Band: band, Anchors: []string{"ltp", "₹", "price", "crudeoil"}},
			},
		},
		{
			Field: models.FieldPriceChange,
			Kind:  KindDecimal,
			Strategies: []Strategy{
				mustRegex("change with percent", `([+\-\x{2212}]\s?\d+(?:\.\d+)?)\s*\(\s*[+\-\x{2212}]?\s?\d+(?:\.\d+)?\s*%\s*\)`),
				mustRegex("price change", `(?i)\b(?:price|net|ltp)\s*(?:change|chg)`+sep+signedDec),
			},
		},
		{
			Field: models.FieldPriceChangePercent,
			Kind:  KindDecimal,
			Strategies: []Strategy{
				mustRegex("percent in parentheses", `\(\s*([+\-\x{2212}]?\s?\d+(?:\.\d+)?)\s*%\s*\)`),
				mustRegex("percent change", `(?i)(?:%\s*change|change\s*%|pct\.?\s*change)`+sep+signedDec),
			},
		},
		{
			Field:   models.FieldDayHigh,
			Kind:    KindInt,
			Bounded: true,
			Strategies: []Strategy{
				mustRegex("day high", `(?i)\bday(?:'s)?\s*high`+sep+rupee+priceNum),
				mustRegex("high", `(?i)\bhigh`+sep+rupee+priceNum),
				&RangeScanStrategy{Label: "high range scan", Band: band, Anchors: []string{"high"}},
			},
		},
		{
			Field:   models.FieldDayLow,
			Kind:    KindInt,
			Bounded: true,
			Strategies: []Strategy{
				mustRegex("day low", `(?i)\bday(?:'s)?\s*low`+sep+rupee+priceNum),
				mustRegex("low", `(?i)\blow`+sep+rupee+priceNum),
				&RangeScanStrategy{Label: "low range scan", Band: band, Anchors: []string{"low"}},
			},
		},
	}
}
