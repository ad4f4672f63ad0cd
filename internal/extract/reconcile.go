package extract

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"csgo-pricer/internal/pricing"
)

var errNoCandidates = errors.New("no candidate prices")

var (
	two  = decimal.NewFromInt(2)
	half = decimal.RequireFromString("0.5")
)

// Median of a sorted slice; even counts average the middle pair.
func median(sorted []decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(two)
}

// Reconcile picks one trustworthy price out of noisy readings. Candidates
// above twice the median are excluded; the lowest remaining candidate wins
// unless, with three or more readings, it sits below half the median, in
// which case the median is used instead.
func Reconcile(candidates []decimal.Decimal) (decimal.Decimal, error) {
	if len(candidates) == 0 {
		return decimal.Zero, errNoCandidates
	}
	sorted := append([]decimal.Decimal(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	med := median(sorted)
	ceiling := med.Mul(two)

	legit := sorted[:0:0]
	for _, c := range sorted {
		if !c.GreaterThan(ceiling) {
			legit = append(legit, c)
		}
	}
	if len(legit) == 0 {
		return med, nil
	}
	lowest := legit[0]
	if len(sorted) >= 3 && lowest.LessThan(med.Mul(half)) {
		return med, nil
	}
	return lowest, nil
}

// predominant returns the currency code with the most observations. A tie
// between currencies is reported as ok=false.
func predominant(obs []pricing.PriceObservation) (code int, ok bool) {
	counts := map[int]int{}
	for _, o := range obs {
		counts[o.CurrencyCode]++
	}
	best, tie := 0, false
	for c, n := range counts {
		switch {
		case n > counts[best]:
			best, tie = c, false
		case n == counts[best] && c != best:
			tie = true
		}
	}
	return best, best != 0 && !tie
}

func amountsIn(obs []pricing.PriceObservation, code int) []decimal.Decimal {
	var out []decimal.Decimal
	for _, o := range obs {
		if o.CurrencyCode == code {
			out = append(out, o.Amount)
		}
	}
	return out
}
