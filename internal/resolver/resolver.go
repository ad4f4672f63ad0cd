// Package resolver answers price lookups through the cache tiers:
// hot cache, then the persistent store, then the external sources.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"csgo-pricer/internal/cache"
	"csgo-pricer/internal/extract"
	"csgo-pricer/internal/pricing"
	"csgo-pricer/internal/source"
	"csgo-pricer/internal/store"
)

// ErrInvalidKey is returned for lookups without a base name.
var ErrInvalidKey = errors.New("item key has no base name")

// Extractor turns a fetched document into prices.
type Extractor interface {
	Extract(doc *pricing.Document, key pricing.ItemKey) (*extract.Result, error)
}

type Config struct {
	StaleAfter      time.Duration
	FetchTimeout    time.Duration
	Catalog         int
	DefaultCurrency int
}

func (c *Config) defaults() {
	if c.StaleAfter <= 0 {
		c.StaleAfter = pricing.DefaultStaleAfter
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.Catalog == 0 {
		c.Catalog = pricing.DefaultCatalog
	}
	if c.DefaultCurrency == 0 {
		c.DefaultCurrency = 1
	}
}

// Counters are cumulative since process start.
type Counters struct {
	HotHits   int64 `json:"hot_hits"`
	StoreHits int64 `json:"store_hits"`
	Fetches   int64 `json:"fetches"`
	Failures  int64 `json:"failures"`
}

type Resolver struct {
	store     store.Store
	hot       cache.HotCache
	sources   []source.Source
	extractor Extractor
	cfg       Config
	log       *slog.Logger
	now       func() time.Time

	group singleflight.Group

	hotHits, storeHits, fetches, failures atomic.Int64
}

// New builds a resolver. Sources are tried in the order given.
func New(st store.Store, hot cache.HotCache, sources []source.Source, ex Extractor, cfg Config, log *slog.Logger) *Resolver {
	cfg.defaults()
	return &Resolver{
		store:     st,
		hot:       hot,
		sources:   sources,
		extractor: ex,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

func (r *Resolver) recordKey(key pricing.ItemKey, currency int) pricing.RecordKey {
	return pricing.RecordKey{BaseName: key.BaseName, Currency: currency, Catalog: r.cfg.Catalog}
}

func (r *Resolver) currency(c int) int {
	if c <= 0 {
		return r.cfg.DefaultCurrency
	}
	return c
}

// Resolve returns the price for key. A fresh cached or stored record is
// answered without touching the network. On KindVariantNotObtainable the
// answer is returned alongside the error.
func (r *Resolver) Resolve(ctx context.Context, key pricing.ItemKey, currency int) (*pricing.PriceAnswer, error) {
	if key.BaseName == "" {
		return nil, ErrInvalidKey
	}
	currency = r.currency(currency)
	rk := r.recordKey(key, currency)
	now := r.now()

	if rec, ok := r.hot.Get(ctx, rk); ok && rec.IsFresh(now, r.cfg.StaleAfter) {
		r.hotHits.Add(1)
		return pricing.AnswerFor(rec, key, "cache")
	}

	rec, err := r.store.Get(ctx, rk)
	switch {
	case err == nil && rec.IsFresh(now, r.cfg.StaleAfter):
		r.storeHits.Add(1)
		r.hot.Set(ctx, rec)
		return pricing.AnswerFor(rec, key, "database")
	case err == nil:
		r.log.DebugContext(ctx, "stored price is stale", "item", key.MarketHashName(), "last_updated", rec.LastUpdated)
	case !errors.Is(err, store.ErrNotFound):
		r.log.WarnContext(ctx, "store lookup failed", "item", key.MarketHashName(), "error", err)
	}

	return r.refresh(ctx, key, currency)
}

// ForceRefresh skips both cache tiers and fetches.
func (r *Resolver) ForceRefresh(ctx context.Context, key pricing.ItemKey, currency int) (*pricing.PriceAnswer, error) {
	if key.BaseName == "" {
		return nil, ErrInvalidKey
	}
	return r.refresh(ctx, key, r.currency(currency))
}

// refresh coalesces concurrent fetches of the same variant. The fetch runs
// detached from any one caller so that a caller giving up does not fail
// the others; a caller that gives up gets its own context error.
func (r *Resolver) refresh(ctx context.Context, key pricing.ItemKey, currency int) (*pricing.PriceAnswer, error) {
	flight := key.MarketHashName() + "|" + strconv.Itoa(currency)
	ch := r.group.DoChan(flight, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.FetchTimeout)
		defer cancel()
		return r.fetch(fctx, key, currency)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		rec := res.Val.(*pricing.PriceRecord)
		return pricing.AnswerFor(rec, key, rec.Source)
	}
}

// fetch walks the source chain, extracts and persists.
func (r *Resolver) fetch(ctx context.Context, key pricing.ItemKey, currency int) (*pricing.PriceRecord, error) {
	r.fetches.Add(1)
	item := key.MarketHashName()

	var lastErr error
	for _, src := range r.sources {
		doc, err := src.Fetch(ctx, key, currency)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.log.WarnContext(ctx, "source failed", "source", src.Name(), "item", item, "error", err)
			lastErr = err
			continue
		}

		res, err := r.extractor.Extract(doc, key)
		if err != nil {
			if pricing.KindOf(err) == pricing.KindPriceUnavailable {
				r.log.WarnContext(ctx, "no price in document", "source", src.Name(), "item", item, "error", err)
				lastErr = err
				continue
			}
			r.failures.Add(1)
			r.touch(ctx, key, currency)
			return nil, err
		}
		return r.persist(ctx, key, currency, src.Name(), res)
	}

	r.failures.Add(1)
	r.touch(ctx, key, currency)
	if lastErr == nil {
		lastErr = errors.New("no sources configured")
	}
	return nil, &pricing.Error{
		Kind: pricing.KindPriceUnavailable,
		Item: item,
		Err:  fmt.Errorf("all %d sources failed: %w", len(r.sources), lastErr),
	}
}

func (r *Resolver) touch(ctx context.Context, key pricing.ItemKey, currency int) {
	if err := r.store.TouchFetchAttempt(ctx, r.recordKey(key, currency), r.now()); err != nil {
		r.log.WarnContext(ctx, "record fetch attempt", "item", key.BaseName, "error", err)
	}
}

// persist merges the extraction into the previous record, writes it to the
// store and then to the hot cache.
func (r *Resolver) persist(ctx context.Context, key pricing.ItemKey, currency int, sourceName string, res *extract.Result) (*pricing.PriceRecord, error) {
	rk := r.recordKey(key, currency)
	now := r.now()

	rec := &pricing.PriceRecord{
		BaseName:         rk.BaseName,
		Currency:         rk.Currency,
		Catalog:          rk.Catalog,
		Matrix:           res.Matrix.Clone(),
		SourceCurrency:   res.Currency.ISO,
		Source:           sourceName,
		Metadata:         res.Metadata,
		LastUpdated:      now,
		LastFetchAttempt: now,
	}
	if prev, err := r.store.Get(ctx, rk); err == nil {
		base, newer := prev.Matrix, res.Matrix
		if res.Structured {
			if newer.HasWears() {
				// wear-less readings from an earlier scan are superseded
				base = base.WithoutFlat()
			}
		} else {
			// a scan never revives a variant confirmed not to exist
			newer = newer.Clone()
			for s := range newer {
				if _, known, ok := base.Lookup(s); known && !ok {
					delete(newer, s)
				}
			}
		}
		rec.Matrix = base.Merge(newer)
		rec.Metadata = mergeMetadata(prev.Metadata, res.Metadata)
	}
	rec.ResolvedPrice = resolvedPrice(rec.Matrix, key)

	stored, err := r.store.Put(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("persist %s: %w", key.BaseName, err)
	}
	r.hot.Set(ctx, stored)
	r.log.InfoContext(ctx, "price refreshed",
		"item", key.MarketHashName(), "source", sourceName, "price", stored.ResolvedPrice.String(),
		"currency", stored.SourceCurrency, "slots", len(stored.Matrix), "update_count", stored.UpdateCount)
	return stored, nil
}

// resolvedPrice follows the lookup priority for key; when key names a
// variant that does not exist it falls back to the default resolution.
func resolvedPrice(m pricing.PriceMatrix, key pricing.ItemKey) decimal.Decimal {
	p, _, err := m.Resolve(key)
	if err == nil {
		return p
	}
	p, _, _ = m.Resolve(pricing.ItemKey{BaseName: key.BaseName})
	return p
}

func mergeMetadata(prev, next pricing.Metadata) pricing.Metadata {
	out := prev
	if next.ImageURL != "" {
		out.ImageURL = next.ImageURL
	}
	if next.Rarity != "" {
		out.Rarity = next.Rarity
	}
	if next.Category != "" {
		out.Category = next.Category
	}
	if next.Weapon != "" {
		out.Weapon = next.Weapon
	}
	if next.History != nil {
		out.History = next.History
	}
	return out
}

// CacheStats reports the hot cache.
func (r *Resolver) CacheStats(ctx context.Context) cache.Stats {
	return r.hot.Stats(ctx)
}

func (r *Resolver) Counters() Counters {
	return Counters{
		HotHits:   r.hotHits.Load(),
		StoreHits: r.storeHits.Load(),
		Fetches:   r.fetches.Load(),
		Failures:  r.failures.Load(),
	}
}

// StaleAfter is the freshness threshold in use.
func (r *Resolver) StaleAfter() time.Duration { return r.cfg.StaleAfter }
