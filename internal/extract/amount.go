package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"csgo-pricer/internal/pricing"
)

// Currency describes how amounts tagged with a symbol are written.
type Currency struct {
	Code         int // Steam market currency id
	ISO          string
	Symbol       string
	CommaDecimal bool // "1.234,56" rather than "1,234.56"
}

var currencies = []Currency{
	{Code: 1, ISO: "USD", Symbol: "$"},
	{Code: 2, ISO: "GBP", Symbol: "£"},
	{Code: 3, ISO: "EUR", Symbol: "€", CommaDecimal: true},
	{Code: 5, ISO: "RUB", Symbol: "₽", CommaDecimal: true},
	{Code: 7, ISO: "BRL", Symbol: "R$", CommaDecimal: true},
	{Code: 23, ISO: "CNY", Symbol: "¥"},
}

// CurrencyBySymbol looks up a currency by the symbol found in a document.
func CurrencyBySymbol(symbol string) (Currency, bool) {
	for _, c := range currencies {
		if c.Symbol == symbol {
			return c, true
		}
	}
	return Currency{}, false
}

// CurrencyByCode looks up a currency by its Steam id.
func CurrencyByCode(code int) (Currency, bool) {
	for _, c := range currencies {
		if c.Code == code {
			return c, true
		}
	}
	return Currency{}, false
}

// Amounts outside this band are parse noise (ids, counters, years).
var (
	MinAmount = decimal.RequireFromString("0.01")
	MaxAmount = decimal.NewFromInt(100000)
)

// ParseAmount converts a numeric string written in the currency's
// convention into a decimal and applies the sanity band.
func ParseAmount(c Currency, raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if c.CommaDecimal {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if v.LessThan(MinAmount) || v.GreaterThan(MaxAmount) {
		return decimal.Zero, fmt.Errorf("amount %s outside [%s, %s]", v, MinAmount, MaxAmount)
	}
	return v, nil
}

var (
	prefixAmount = regexp.MustCompile(`(R\$|\$|€|£|¥|₽)\s*(\d[\d.,]*\d|\d)`)
	suffixAmount = regexp.MustCompile(`(\d[\d.,]*\d|\d)(€|₽)`)
)

// FindObservations returns every currency-tagged amount in text that
// survives parsing and the sanity band.
func FindObservations(text, label string) []pricing.PriceObservation {
	var out []pricing.PriceObservation
	var taken [][2]int

	for _, m := range prefixAmount.FindAllStringSubmatchIndex(text, -1) {
		taken = append(taken, [2]int{m[0], m[1]})
		if obs, ok := observe(text[m[2]:m[3]], text[m[4]:m[5]], label); ok {
			out = append(out, obs)
		}
	}
	for _, m := range suffixAmount.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(taken, m[0], m[1]) {
			continue
		}
		if obs, ok := observe(text[m[4]:m[5]], text[m[2]:m[3]], label); ok {
			out = append(out, obs)
		}
	}
	return out
}

func observe(symbol, number, label string) (pricing.PriceObservation, bool) {
	c, ok := CurrencyBySymbol(symbol)
	if !ok {
		return pricing.PriceObservation{}, false
	}
	v, err := ParseAmount(c, number)
	if err != nil {
		return pricing.PriceObservation{}, false
	}
	return pricing.PriceObservation{Amount: v, CurrencyCode: c.Code, SourceLabel: label}, true
}

func overlaps(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}
