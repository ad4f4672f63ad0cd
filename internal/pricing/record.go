package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCatalog is the Steam app id for Counter-Strike.
const DefaultCatalog = 730

// DefaultStaleAfter is how long a persisted price is trusted.
const DefaultStaleAfter = 7 * 24 * time.Hour

// PriceObservation is one raw reading before reconciliation.
type PriceObservation struct {
	Amount       decimal.Decimal
	CurrencyCode int
	SourceLabel  string
}

// Document is a raw page returned by an external source.
type Document struct {
	Source      string
	URL         string
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// HistoryPoint is one daily sample of the market.
type HistoryPoint struct {
	Date     time.Time       `json:"date"`
	Price    decimal.Decimal `json:"price"`
	Volume   int             `json:"volume"`
	Listings int             `json:"listings"`
}

// TimeSeries summarises the price history found on an item page.
type TimeSeries struct {
	Points      []HistoryPoint  `json:"points"`
	AllTimeHigh decimal.Decimal `json:"all_time_high"`
	AllTimeLow  decimal.Decimal `json:"all_time_low"`
	Current     decimal.Decimal `json:"current"`
	Change7d    *float64        `json:"change_7d,omitempty"`
	Change30d   *float64        `json:"change_30d,omitempty"`
}

// Metadata is best-effort auxiliary data about an item.
type Metadata struct {
	ImageURL string      `json:"image_url,omitempty"`
	Rarity   string      `json:"rarity,omitempty"`
	Category string      `json:"category,omitempty"`
	Weapon   string      `json:"weapon,omitempty"`
	History  *TimeSeries `json:"price_history,omitempty"`
}

// RecordKey addresses a persisted record. Records are per base name; the
// matrix inside covers every variant.
type RecordKey struct {
	BaseName string
	Currency int
	Catalog  int
}

// PriceRecord is the persisted unit of truth.
type PriceRecord struct {
	BaseName         string
	Currency         int
	Catalog          int
	ResolvedPrice    decimal.Decimal
	Matrix           PriceMatrix
	SourceCurrency   string
	Source           string
	Metadata         Metadata
	LastUpdated      time.Time
	LastFetchAttempt time.Time
	UpdateCount      int
}

func (r *PriceRecord) Key() RecordKey {
	return RecordKey{BaseName: r.BaseName, Currency: r.Currency, Catalog: r.Catalog}
}

// IsFresh evaluates freshness at read time.
func (r *PriceRecord) IsFresh(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(r.LastUpdated) < staleAfter
}

// Clone returns a copy that shares nothing mutable with r.
func (r *PriceRecord) Clone() *PriceRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Matrix = r.Matrix.Clone()
	if r.Metadata.History != nil {
		h := *r.Metadata.History
		h.Points = append([]HistoryPoint(nil), r.Metadata.History.Points...)
		out.Metadata.History = &h
	}
	return &out
}

// PriceAnswer is what every caller receives. NotObtainable is set, with a
// message, when the requested variant is confirmed not to exist.
type PriceAnswer struct {
	Item          ItemKey
	Price         decimal.Decimal
	Slot          Slot
	Currency      int
	Matrix        PriceMatrix
	Metadata      Metadata
	Source        string
	LastUpdated   time.Time
	NotObtainable bool
	Message       string
}

// AnswerFor derives the answer for key from a record. On
// KindVariantNotObtainable the returned answer is still populated so
// callers can render the matrix.
func AnswerFor(rec *PriceRecord, key ItemKey, source string) (*PriceAnswer, error) {
	ans := &PriceAnswer{
		Item:        key,
		Currency:    rec.Currency,
		Matrix:      rec.Matrix.Clone(),
		Metadata:    rec.Metadata,
		Source:      source,
		LastUpdated: rec.LastUpdated,
	}
	price, slot, err := rec.Matrix.Resolve(key)
	if err != nil {
		if KindOf(err) == KindVariantNotObtainable {
			ans.NotObtainable = true
			ans.Slot = slot
			ans.Message = key.MarketHashName() + " does not exist in this wear/StatTrak combination"
			return ans, err
		}
		return nil, err
	}
	ans.Price = price
	ans.Slot = slot
	return ans, nil
}
