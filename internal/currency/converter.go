// Package currency detects the currency of a free-text price and converts
// it to the store's display currency.
package currency

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/flyspark015/nexacat/internal/domain"
)

const (
	DefaultRate   = 83.5
	DefaultTarget = "INR"
)

// detectors are checked in order; the first match wins.
var detectors = []struct {
	code string
	re   *regexp.Regexp
}{
	{"INR", regexp.MustCompile(`₹|\bINR\b|\bRS\.?\s*\d`)},
	{"EUR", regexp.MustCompile(`€|\bEUR\b`)},
	{"GBP", regexp.MustCompile(`£|\bGBP\b`)},
	{"JPY", regexp.MustCompile(`¥|\bJPY\b`)},
	{"USD", regexp.MustCompile(`\$|\bUSD\b`)},
}

var numberRe = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// Converter converts every non-target currency with one flat Rate. That is a
// known approximation for anything but USD.
type Converter struct {
	Rate   float64
	Target string
}

func New(rate float64, target string) Converter {
	if rate <= 0 {
		rate = DefaultRate
	}
	if target == "" {
		target = DefaultTarget
	}
	return Converter{Rate: rate, Target: strings.ToUpper(target)}
}

// Convert parses priceText. hint, when set, overrides currency detection.
// Amounts are nil when no number can be parsed.
func (c Converter) Convert(priceText, hint string) domain.PriceConversion {
	code := strings.ToUpper(strings.TrimSpace(hint))
	if code == "" {
		code = Detect(priceText)
	}
	out := domain.PriceConversion{OriginalCurrency: code, TargetCurrency: c.Target}

	amount, ok := parseAmount(priceText)
	if !ok {
		return out
	}
	out.OriginalPrice = &amount

	target := amount
	if code != c.Target {
		target = amount * c.Rate
	}
	target = math.Round(target)
	out.TargetPrice = &target
	return out
}

// Detect returns the currency code named in text, defaulting to USD.
func Detect(text string) string {
	upper := strings.ToUpper(text)
	for _, d := range detectors {
		if d.re.MatchString(upper) {
			return d.code
		}
	}
	return "USD"
}

func parseAmount(text string) (float64, bool) {
	m := numberRe.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
