package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"csgo-pricer/internal/pricing"
)

var historyDecl = regexp.MustCompile(`(?i)const\s+priceHistory\s*=`)

// ParseHistory finds the inline `const priceHistory = [[date, cents,
// volume, listings], ...]` array and summarises it. It returns nil when the
// page carries no history.
func ParseHistory(body []byte) (*pricing.TimeSeries, error) {
	loc := historyDecl.FindIndex(body)
	if loc == nil {
		return nil, nil
	}
	raw, err := bracketed(body[loc[1]:])
	if err != nil {
		return nil, err
	}

	var rows [][]any
	jd := json.NewDecoder(bytes.NewReader(raw))
	jd.UseNumber()
	if err := jd.Decode(&rows); err != nil {
		// inline scripts sometimes quote with '
		jd = json.NewDecoder(strings.NewReader(strings.ReplaceAll(string(raw), "'", `"`)))
		jd.UseNumber()
		if err2 := jd.Decode(&rows); err2 != nil {
			return nil, fmt.Errorf("decode price history: %w", err)
		}
	}

	points := make([]pricing.HistoryPoint, 0, len(rows))
	for _, row := range rows {
		if p, ok := historyPoint(row); ok {
			points = append(points, p)
		}
	}
	if len(points) == 0 {
		return nil, nil
	}
	return Summarise(points), nil
}

// bracketed returns the first balanced [...] in b, skipping brackets that
// appear inside string literals.
func bracketed(b []byte) ([]byte, error) {
	start := bytes.IndexByte(b, '[')
	if start < 0 {
		return nil, fmt.Errorf("price history array not found")
	}
	depth := 0
	var quote byte
	for i := start; i < len(b); i++ {
		c := b[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return b[start : i+1], nil
			}
		}
	}
	return nil, fmt.Errorf("price history array not closed")
}

func historyPoint(row []any) (pricing.HistoryPoint, bool) {
	if len(row) < 2 {
		return pricing.HistoryPoint{}, false
	}
	ds, ok := row[0].(string)
	if !ok {
		return pricing.HistoryPoint{}, false
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(ds))
	if err != nil {
		return pricing.HistoryPoint{}, false
	}
	cents, ok := row[1].(json.Number)
	if !ok {
		return pricing.HistoryPoint{}, false
	}
	c, err := decimal.NewFromString(cents.String())
	if err != nil {
		return pricing.HistoryPoint{}, false
	}
	p := pricing.HistoryPoint{Date: date, Price: c.Shift(-2)}
	if len(row) > 2 {
		p.Volume = intOf(row[2])
	}
	if len(row) > 3 {
		p.Listings = intOf(row[3])
	}
	return p, true
}

func intOf(v any) int {
	n, ok := v.(json.Number)
	if !ok {
		return 0
	}
	i, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return 0
		}
		return int(f)
	}
	return int(i)
}

// Summarise computes the headline figures of a series ordered oldest first.
func Summarise(points []pricing.HistoryPoint) *pricing.TimeSeries {
	ts := &pricing.TimeSeries{Points: points}
	for i, p := range points {
		if i == 0 || p.Price.GreaterThan(ts.AllTimeHigh) {
			ts.AllTimeHigh = p.Price
		}
		if i == 0 || p.Price.LessThan(ts.AllTimeLow) {
			ts.AllTimeLow = p.Price
		}
	}
	ts.Current = points[len(points)-1].Price
	ts.Change7d = changeOver(points, 7)
	ts.Change30d = changeOver(points, 30)
	return ts
}

// changeOver is the percent change from the sample n entries back.
func changeOver(points []pricing.HistoryPoint, n int) *float64 {
	if len(points) < n {
		return nil
	}
	then := points[len(points)-n].Price
	if !then.IsPositive() {
		return nil
	}
	now := points[len(points)-1].Price
	pct, _ := now.Sub(then).Div(then).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return &pct
}
