// Package store persists price records. DurableStore keeps them in SQL,
// MemoryStore keeps them for the life of the process, and DegradableStore
// chooses between the two so that lookups never fail because the database
// is down.
package store

import (
	"context"
	"errors"
	"time"

	"csgo-pricer/internal/pricing"
)

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("price record not found")

type Mode string

const (
	ModeConnected Mode = "connected"
	ModeDegraded  Mode = "degraded"
	ModeMemory    Mode = "memory"
)

// Stats summarises the store contents.
type Stats struct {
	Mode          Mode  `json:"mode"`
	Records       int64 `json:"records"`
	Stale         int64 `json:"stale"`
	HistoryPoints int64 `json:"history_points"`
}

// Store is implemented by every backend.
type Store interface {
	// Get returns the record regardless of age; freshness is the caller's call.
	Get(ctx context.Context, key pricing.RecordKey) (*pricing.PriceRecord, error)
	// Put upserts rec, increments its update count and returns what was stored.
	Put(ctx context.Context, rec *pricing.PriceRecord) (*pricing.PriceRecord, error)
	// ListStale returns up to limit records not updated within olderThan, oldest first.
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]*pricing.PriceRecord, error)
	// List pages through every record ordered by base name.
	List(ctx context.Context, offset, limit int) ([]*pricing.PriceRecord, error)
	TouchFetchAttempt(ctx context.Context, key pricing.RecordKey, at time.Time) error
	History(ctx context.Context, baseName string, since time.Time) ([]pricing.HistoryPoint, error)
	SetMeta(ctx context.Context, key, value string) error
	GetMeta(ctx context.Context, key string) (string, time.Time, error)
	Stats(ctx context.Context, staleAfter time.Duration) (Stats, error)
}

// LastRefreshKey is the metadata key recording the last bulk refresh.
const LastRefreshKey = "last_refresh"

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
