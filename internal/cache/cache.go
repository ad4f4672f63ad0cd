// Package cache is the hot tier in front of the store: a bounded set of
// resolved records that expire after a fixed TTL.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"csgo-pricer/internal/pricing"
)

// Stats describes the cache for the stats endpoint.
type Stats struct {
	Backend    string `json:"backend"`
	Size       int    `json:"size"`
	Capacity   int    `json:"capacity"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// HotCache memoizes resolved records. It is never the source of truth.
type HotCache interface {
	Get(ctx context.Context, key pricing.RecordKey) (*pricing.PriceRecord, bool)
	Set(ctx context.Context, rec *pricing.PriceRecord)
	Stats(ctx context.Context) Stats
}

// LRU is the in-process cache. Entries expire after ttl; the oldest entry
// is evicted once capacity is reached.
type LRU struct {
	lru      *expirable.LRU[pricing.RecordKey, *pricing.PriceRecord]
	capacity int
	ttl      time.Duration
}

func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 1000
	}
	return &LRU{
		lru:      expirable.NewLRU[pricing.RecordKey, *pricing.PriceRecord](capacity, nil, ttl),
		capacity: capacity,
		ttl:      ttl,
	}
}

func (c *LRU) Get(_ context.Context, key pricing.RecordKey) (*pricing.PriceRecord, bool) {
	rec, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Set overwrites any existing entry and restarts its TTL.
func (c *LRU) Set(_ context.Context, rec *pricing.PriceRecord) {
	c.lru.Add(rec.Key(), rec.Clone())
}

func (c *LRU) Stats(context.Context) Stats {
	return Stats{
		Backend:    "memory",
		Size:       c.lru.Len(),
		Capacity:   c.capacity,
		TTLSeconds: int(c.ttl / time.Second),
	}
}
