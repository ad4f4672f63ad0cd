package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"csgo-pricer/internal/pricing"
)

// RedisCache shares the hot tier between processes. Every entry is also
// kept in a local LRU, which answers when Redis is unavailable.
type RedisCache struct {
	rdb *redis.Client
	mem *LRU
	ttl time.Duration
	log *slog.Logger
}

// NewRedisCache connects using a redis:// URL and pings the server.
func NewRedisCache(ctx context.Context, url string, capacity int, ttl time.Duration, log *slog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{
		rdb: rdb,
		mem: NewLRU(capacity, ttl),
		ttl: ttl,
		log: log,
	}, nil
}

func (r *RedisCache) Close() error {
	return r.rdb.Close()
}

func recordKey(k pricing.RecordKey) string {
	return fmt.Sprintf("price:%d:%d:%s", k.Catalog, k.Currency, k.BaseName)
}

func (r *RedisCache) Get(ctx context.Context, key pricing.RecordKey) (*pricing.PriceRecord, bool) {
	b, err := r.rdb.Get(ctx, recordKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.log.WarnContext(ctx, "redis get failed, using memory cache", "key", key.BaseName, "error", err)
		return r.mem.Get(ctx, key)
	}
	var rec pricing.PriceRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		r.log.WarnContext(ctx, "dropping undecodable cache entry", "key", key.BaseName, "error", err)
		_ = r.rdb.Del(ctx, recordKey(key)).Err()
		return nil, false
	}
	return &rec, true
}

func (r *RedisCache) Set(ctx context.Context, rec *pricing.PriceRecord) {
	r.mem.Set(ctx, rec)
	b, err := json.Marshal(rec)
	if err != nil {
		r.log.WarnContext(ctx, "encode cache entry", "key", rec.BaseName, "error", err)
		return
	}
	if err := r.rdb.Set(ctx, recordKey(rec.Key()), b, r.ttl).Err(); err != nil {
		r.log.WarnContext(ctx, "redis set failed, kept in memory cache", "key", rec.BaseName, "error", err)
	}
}

func (r *RedisCache) Stats(ctx context.Context) Stats {
	st := r.mem.Stats(ctx)
	st.Backend = "redis"
	var cursor uint64
	size := 0
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, "price:*", 500).Result()
		if err != nil {
			st.Backend = "redis (unreachable)"
			return st
		}
		size += len(keys)
		if next == 0 {
			break
		}
		cursor = next
	}
	st.Size = size
	return st
}
