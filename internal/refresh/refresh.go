// Package refresh re-fetches stored prices once they go stale.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"csgo-pricer/internal/pricing"
	"csgo-pricer/internal/store"
)

// Refresher is the part of the resolver the scheduler needs.
type Refresher interface {
	ForceRefresh(ctx context.Context, key pricing.ItemKey, currency int) (*pricing.PriceAnswer, error)
}

type Config struct {
	StaleAfter time.Duration
	BatchSize  int
	Interval   time.Duration
}

// Result summarises one batch.
type Result struct {
	Checked  int       `json:"checked"`
	Updated  int       `json:"updated"`
	Failed   int       `json:"failed"`
	Errors   []string  `json:"errors,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

type Scheduler struct {
	store    store.Store
	resolver Refresher
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
}

func New(st store.Store, r Refresher, cfg Config, log *slog.Logger) *Scheduler {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = pricing.DefaultStaleAfter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Scheduler{store: st, resolver: r, cfg: cfg, log: log, now: time.Now}
}

// maxErrors caps the error strings kept on a Result.
const maxErrors = 20

// RefreshBatch refreshes up to max stale records, oldest first. A max of
// zero or less uses the configured batch size. Cancellation stops the batch
// and returns what was done so far with the context error.
func (s *Scheduler) RefreshBatch(ctx context.Context, max int) (Result, error) {
	if max <= 0 {
		max = s.cfg.BatchSize
	}
	res := Result{Started: s.now()}

	recs, err := s.store.ListStale(ctx, s.cfg.StaleAfter, max)
	if err != nil {
		return res, fmt.Errorf("list stale records: %w", err)
	}
	s.log.InfoContext(ctx, "refresh batch started", "stale", len(recs), "max", max)

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			res.Finished = s.now()
			return res, err
		}
		res.Checked++

		key := keyFor(rec)
		_, err := s.resolver.ForceRefresh(ctx, key, rec.Currency)
		switch {
		case err == nil, errors.Is(err, pricing.ErrVariantNotObtainable):
			res.Updated++
		case ctx.Err() != nil:
			res.Finished = s.now()
			return res, ctx.Err()
		default:
			res.Failed++
			if len(res.Errors) < maxErrors {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rec.BaseName, err))
			}
			s.log.WarnContext(ctx, "refresh failed", "item", rec.BaseName, "currency", rec.Currency, "error", err)
		}
	}

	res.Finished = s.now()
	if err := s.store.SetMeta(ctx, store.LastRefreshKey, res.Finished.UTC().Format(time.RFC3339)); err != nil {
		s.log.WarnContext(ctx, "record last refresh", "error", err)
	}
	s.log.InfoContext(ctx, "refresh batch finished",
		"checked", res.Checked, "updated", res.Updated, "failed", res.Failed,
		"took", res.Finished.Sub(res.Started).Round(time.Millisecond))
	return res, nil
}

// keyFor picks the variant to fetch for a stored record: the default slot
// when it has a price, else the cheapest known slot.
func keyFor(rec *pricing.PriceRecord) pricing.ItemKey {
	key := pricing.ItemKey{BaseName: rec.BaseName}
	slot := pricing.DefaultSlot
	if _, _, ok := rec.Matrix.Lookup(slot); !ok {
		s, _, ok := rec.Matrix.Lowest()
		if !ok {
			return key
		}
		slot = s
	}
	key.Wear, key.Tracked = slot.Wear, slot.Tracked
	return key
}

// Run refreshes one batch immediately and then on every interval until ctx
// is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	iteration := 0
	for {
		iteration++
		if _, err := s.RefreshBatch(ctx, 0); err != nil && ctx.Err() == nil {
			s.log.ErrorContext(ctx, "refresh batch", "iteration", iteration, "error", err)
		}

		select {
		case <-ctx.Done():
			s.log.Info("refresher stopping", "iterations", iteration)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
