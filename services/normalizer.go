package services

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"vehicle-pricer/models"
)

var (
	// amountRegexp captures the first number-looking run, separators included
	amountRegexp = regexp.MustCompile(`\d[\d.,\s\x{00A0}]*`)
	// currencyRegexp finds grouped amounts followed by a lira marker in free text
	currencyRegexp = regexp.MustCompile(`(?i)(\d{1,3}(?:[.,]\d{3})+)\s*(?:TL|₺)`)
)

// PriceBand is the plausible range for a single listing price. Anything
// outside it is parsing noise (phone numbers, mileage, monthly rates).
type PriceBand struct {
	Min int64
	Max int64
}

func (b PriceBand) Contains(v int64) bool {
	return v >= b.Min && v <= b.Max
}

// Normalizer turns raw price text into PriceObservations. Every price an
// adapter reports passes through here, so the band is enforced once.
type Normalizer struct {
	band PriceBand
}

// NewNormalizer creates a Normalizer for the given band.
func NewNormalizer(band PriceBand) *Normalizer {
	return &Normalizer{band: band}
}

// Band returns the configured plausibility band.
func (n *Normalizer) Band() PriceBand { return n.band }

// WithBand returns a Normalizer with the same rules and another band.
func (n *Normalizer) WithBand(band PriceBand) *Normalizer {
	return &Normalizer{band: band}
}

// Normalize parses raw currency text. Examples:
//
//	"1.250.000 TL"  → 1250000
//	"₺ 985.500"     → 985500
//	"1.250.000,60"  → 1250001
//	"1,250,000.40"  → 1250000
//	"12 TL"         → not a price (below band)
func (n *Normalizer) Normalize(raw string) (models.PriceObservation, bool) {
	match := amountRegexp.FindString(raw)
	if match == "" {
		return 0, false
	}

	canonical := canonicalNumber(match)
	if canonical == "" {
		return 0, false
	}

	d, err := decimal.NewFromString(canonical)
	if err != nil {
		return 0, false
	}
	d = d.Round(0)

	if d.LessThan(decimal.NewFromInt(n.band.Min)) || d.GreaterThan(decimal.NewFromInt(n.band.Max)) {
		return 0, false
	}
	return d.IntPart(), true
}

// canonicalNumber strips whitespace and thousands separators and turns a
// decimal comma into a decimal point.
func canonicalNumber(s string) string {
	s = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			return r
		}
		return -1
	}, s)
	s = strings.Trim(s, ".,")
	if s == "" {
		return ""
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// the separator that comes last is the decimal one
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		return resolveSingleSeparator(s, ",")
	case lastDot >= 0:
		return resolveSingleSeparator(s, ".")
	}
	return s
}

// resolveSingleSeparator handles text that uses only one separator kind:
// repeated or followed by exactly three digits means grouping, otherwise
// it is the decimal separator.
func resolveSingleSeparator(s, sep string) string {
	if strings.Count(s, sep) > 1 {
		return strings.ReplaceAll(s, sep, "")
	}
	idx := strings.Index(s, sep)
	if len(s)-idx-1 == 3 {
		return strings.ReplaceAll(s, sep, "")
	}
	return strings.Replace(s, sep, ".", 1)
}

// Amount is a currency-marked number found in free text.
type Amount struct {
	Raw    string
	Offset int
}

// ScanAmounts finds "1.250.000 TL" style amounts in running text. It is the
// fallback when a document has no structured price cells.
func ScanAmounts(text string) []Amount {
	idx := currencyRegexp.FindAllStringSubmatchIndex(text, -1)
	out := make([]Amount, 0, len(idx))
	for _, m := range idx {
		out = append(out, Amount{Raw: text[m[2]:m[3]], Offset: m[0]})
	}
	return out
}

// Collector accumulates de-duplicated observations in first-seen order up
// to a limit.
type Collector struct {
	normalizer *Normalizer
	limit      int
	seen       map[models.PriceObservation]struct{}
	values     []models.PriceObservation
}

// NewCollector creates a Collector. A limit <= 0 means unbounded.
func (n *Normalizer) NewCollector(limit int) *Collector {
	return &Collector{
		normalizer: n,
		limit:      limit,
		seen:       make(map[models.PriceObservation]struct{}),
		values:     make([]models.PriceObservation, 0),
	}
}

// Add normalizes raw and keeps it if it is a new plausible price.
func (c *Collector) Add(raw string) bool {
	if c.Full() {
		return false
	}
	v, ok := c.normalizer.Normalize(raw)
	if !ok {
		return false
	}
	if _, dup := c.seen[v]; dup {
		return false
	}
	c.seen[v] = struct{}{}
	c.values = append(c.values, v)
	return true
}

// Full reports whether the limit has been reached.
func (c *Collector) Full() bool {
	return c.limit > 0 && len(c.values) >= c.limit
}

func (c *Collector) Len() int { return len(c.values) }

// Values returns a copy of the collected observations.
func (c *Collector) Values() []models.PriceObservation {
	out := make([]models.PriceObservation, len(c.values))
	copy(out, c.values)
	return out
}
