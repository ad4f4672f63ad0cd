// Package extract turns fetched documents into price matrices.
//
// Two paths exist. Item pages that list a price per wear row are read
// row by row into a full matrix. Anything else (Steam listing pages,
// priceoverview JSON, wear-less items) is scanned for every currency
// tagged amount, and the readings are reconciled into one price placed in
// the requested slot.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"csgo-pricer/internal/pricing"
)

// Result is what one document yields.
type Result struct {
	Matrix     pricing.PriceMatrix
	Currency   Currency
	Metadata   pricing.Metadata
	Structured bool // matrix came from per-wear rows
}

// Extractor is stateless and safe for concurrent use.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

const priceRowSelector = "div.relative.flex.px-4.py-2"

// Extract parses doc for key. Errors are *pricing.Error of kind
// ExtractMalformed or PriceUnavailable.
func (e *Extractor) Extract(doc *pricing.Document, key pricing.ItemKey) (*Result, error) {
	item := key.MarketHashName()
	if doc == nil || len(bytes.TrimSpace(doc.Body)) == 0 {
		return nil, pricing.Errorf(pricing.KindPriceUnavailable, item, "empty document")
	}

	if strings.Contains(doc.ContentType, "json") {
		obs, err := jsonObservations(doc.Body, doc.Source)
		if err != nil {
			return nil, &pricing.Error{Kind: pricing.KindExtractMalformed, Item: item, Err: err}
		}
		return scanned(obs, key, pricing.Metadata{})
	}

	root, err := html.Parse(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, &pricing.Error{Kind: pricing.KindExtractMalformed, Item: item, Err: fmt.Errorf("parse html: %w", err)}
	}
	gq := goquery.NewDocumentFromNode(root)

	meta := metadata(gq, key, doc.URL)
	if h, err := ParseHistory(doc.Body); err == nil {
		meta.History = h
	}

	if rows := gq.Find(priceRowSelector); rows.Length() > 0 {
		res, err := structured(rows, item, doc.Source)
		if err != nil {
			return nil, err
		}
		if res != nil {
			res.Metadata = meta
			return res, nil
		}
	}

	return scanned(FindObservations(strings.Join(textLines(gq.Find("body").Nodes), "\n"), doc.Source), key, meta)
}

type slotReadings struct {
	obs         []pricing.PriceObservation
	notPossible bool
}

// structured reads per-wear rows. It returns nil, nil when no row carries a
// wear label so the caller can fall back to scanning.
func structured(rows *goquery.Selection, item, label string) (*Result, error) {
	readings := map[pricing.Slot]*slotReadings{}
	var all []pricing.PriceObservation

	rows.Each(func(_ int, row *goquery.Selection) {
		text := strings.ToLower(row.Text())
		wear := pricing.WearFromLabel(text)
		if wear == pricing.WearNone {
			return
		}
		slot := pricing.Slot{Wear: wear, Tracked: isTracked(row, text)}
		r := readings[slot]
		if r == nil {
			r = &slotReadings{}
			readings[slot] = r
		}
		if strings.Contains(text, "not possible") {
			r.notPossible = true
			return
		}
		obs := FindObservations(row.Find("span.font-bold").First().Text(), label)
		if len(obs) > 0 {
			r.obs = append(r.obs, obs[0])
			all = append(all, obs[0])
		}
	})
	if len(readings) == 0 {
		return nil, nil
	}

	cur, err := singleCurrency(all)
	if err != nil {
		return nil, &pricing.Error{Kind: pricing.KindExtractMalformed, Item: item, Err: err}
	}

	m := pricing.PriceMatrix{}
	for slot, r := range readings {
		if len(r.obs) == 0 {
			continue
		}
		amounts := make([]decimal.Decimal, len(r.obs))
		for i, o := range r.obs {
			amounts[i] = o.Amount
		}
		price, err := Reconcile(amounts)
		if err != nil {
			continue
		}
		m.Set(slot, price)
	}
	for slot, r := range readings {
		if r.notPossible {
			m.MarkNotObtainable(slot)
		}
	}
	if !m.HasPrice() {
		return nil, pricing.Errorf(pricing.KindPriceUnavailable, item, "price rows carry no price")
	}
	return &Result{Matrix: m, Currency: cur, Structured: true}, nil
}

// isTracked looks for the orange StatTrak badge, then for the word anywhere
// in the row.
func isTracked(row *goquery.Selection, lowerText string) bool {
	tracked := false
	row.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		style, _ := s.Attr("style")
		if strings.Contains(strings.ToLower(style), "#f89406") && strings.Contains(strings.ToLower(s.Text()), "stattrak") {
			tracked = true
		}
		return !tracked
	})
	return tracked || strings.Contains(lowerText, "stattrak")
}

func singleCurrency(obs []pricing.PriceObservation) (Currency, error) {
	var code int
	for _, o := range obs {
		if code != 0 && o.CurrencyCode != code {
			return Currency{}, fmt.Errorf("mixed currencies in price rows (%d and %d)", code, o.CurrencyCode)
		}
		code = o.CurrencyCode
	}
	c, _ := CurrencyByCode(code)
	return c, nil
}

// scanned reconciles loose readings into a single price for key's slot.
func scanned(obs []pricing.PriceObservation, key pricing.ItemKey, meta pricing.Metadata) (*Result, error) {
	item := key.MarketHashName()
	if len(obs) == 0 {
		return nil, pricing.Errorf(pricing.KindPriceUnavailable, item, "no recognizable price in document")
	}
	// Loose text mixes in prices for other listings. Readings in a minority
	// currency are dropped; only a tie between currencies is malformed.
	code, ok := predominant(obs)
	if !ok {
		return nil, pricing.Errorf(pricing.KindExtractMalformed, item, "no predominant currency among %d readings", len(obs))
	}
	price, err := Reconcile(amountsIn(obs, code))
	if err != nil {
		return nil, &pricing.Error{Kind: pricing.KindPriceUnavailable, Item: item, Err: err}
	}
	cur, _ := CurrencyByCode(code)
	m := pricing.PriceMatrix{}
	m.Set(key.Slot(), price)
	return &Result{Matrix: m, Currency: cur, Metadata: meta}, nil
}

// jsonObservations scans every string value of a JSON document.
func jsonObservations(body []byte, label string) ([]pricing.PriceObservation, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if m, ok := v.(map[string]any); ok {
		if success, ok := m["success"].(bool); ok && !success {
			return nil, nil
		}
	}
	var out []pricing.PriceObservation
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			out = append(out, FindObservations(t, label)...)
		case map[string]any:
			for _, c := range t {
				walk(c)
			}
		case []any:
			for _, c := range t {
				walk(c)
			}
		}
	}
	walk(v)
	return out, nil
}
