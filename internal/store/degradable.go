package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"csgo-pricer/internal/pricing"
)

// Durable is the durable side of a DegradableStore.
type Durable interface {
	Store
	Ping(ctx context.Context) error
}

// DegradableStore probes the durable backend once. When reachable it runs
// Connected: calls go to the durable store and are mirrored in memory, and
// a failing call is served from memory for that call only. Otherwise it
// runs Degraded on memory alone for the life of the process.
type DegradableStore struct {
	durable Durable
	memory  *MemoryStore
	mode    Mode
	log     *slog.Logger
}

func NewDegradableStore(ctx context.Context, durable Durable, log *slog.Logger) *DegradableStore {
	s := &DegradableStore{memory: NewMemoryStore(), mode: ModeDegraded, log: log}
	if durable == nil {
		log.WarnContext(ctx, "no durable store configured, running on memory",
			"error", pricing.ErrConnectionDegraded)
		return s
	}
	if err := durable.Ping(ctx); err != nil {
		log.WarnContext(ctx, "durable store unreachable, running on memory",
			"error", &pricing.Error{Kind: pricing.KindConnectionDegraded, Err: err})
		return s
	}
	s.durable = durable
	s.mode = ModeConnected
	return s
}

func (s *DegradableStore) Mode() Mode { return s.mode }

func (s *DegradableStore) connected() bool { return s.mode == ModeConnected }

func (s *DegradableStore) degrade(ctx context.Context, op string, err error) {
	s.log.WarnContext(ctx, "durable store call failed, using memory",
		"op", op, "error", &pricing.Error{Kind: pricing.KindConnectionDegraded, Err: err})
}

func (s *DegradableStore) Get(ctx context.Context, key pricing.RecordKey) (*pricing.PriceRecord, error) {
	if !s.connected() {
		return s.memory.Get(ctx, key)
	}
	rec, err := s.durable.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.degrade(ctx, "get", err)
		return s.memory.Get(ctx, key)
	}
	// a write that fell back to memory may be newer than the durable copy
	if mem, merr := s.memory.Get(ctx, key); merr == nil && (rec == nil || mem.LastUpdated.After(rec.LastUpdated)) {
		return mem, nil
	}
	return rec, err
}

func (s *DegradableStore) Put(ctx context.Context, rec *pricing.PriceRecord) (*pricing.PriceRecord, error) {
	if !s.connected() {
		return s.memory.Put(ctx, rec)
	}
	stored, err := s.durable.Put(ctx, rec)
	if err != nil {
		s.degrade(ctx, "put", err)
		return s.memory.Put(ctx, rec)
	}
	s.memory.load(stored)
	return stored, nil
}

func (s *DegradableStore) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]*pricing.PriceRecord, error) {
	if s.connected() {
		recs, err := s.durable.ListStale(ctx, olderThan, limit)
		if err == nil {
			return recs, nil
		}
		s.degrade(ctx, "list_stale", err)
	}
	return s.memory.ListStale(ctx, olderThan, limit)
}

func (s *DegradableStore) List(ctx context.Context, offset, limit int) ([]*pricing.PriceRecord, error) {
	if s.connected() {
		recs, err := s.durable.List(ctx, offset, limit)
		if err == nil {
			return recs, nil
		}
		s.degrade(ctx, "list", err)
	}
	return s.memory.List(ctx, offset, limit)
}

func (s *DegradableStore) TouchFetchAttempt(ctx context.Context, key pricing.RecordKey, at time.Time) error {
	_ = s.memory.TouchFetchAttempt(ctx, key, at)
	if s.connected() {
		if err := s.durable.TouchFetchAttempt(ctx, key, at); err != nil {
			s.degrade(ctx, "touch", err)
		}
	}
	return nil
}

func (s *DegradableStore) History(ctx context.Context, baseName string, since time.Time) ([]pricing.HistoryPoint, error) {
	if s.connected() {
		pts, err := s.durable.History(ctx, baseName, since)
		if err == nil {
			return pts, nil
		}
		s.degrade(ctx, "history", err)
	}
	return s.memory.History(ctx, baseName, since)
}

func (s *DegradableStore) SetMeta(ctx context.Context, key, value string) error {
	_ = s.memory.SetMeta(ctx, key, value)
	if s.connected() {
		if err := s.durable.SetMeta(ctx, key, value); err != nil {
			s.degrade(ctx, "set_meta", err)
		}
	}
	return nil
}

func (s *DegradableStore) GetMeta(ctx context.Context, key string) (string, time.Time, error) {
	if s.connected() {
		v, at, err := s.durable.GetMeta(ctx, key)
		if err == nil || errors.Is(err, ErrNotFound) {
			if mv, mat, merr := s.memory.GetMeta(ctx, key); merr == nil && mat.After(at) {
				return mv, mat, nil
			}
			return v, at, err
		}
		s.degrade(ctx, "get_meta", err)
	}
	return s.memory.GetMeta(ctx, key)
}

func (s *DegradableStore) Stats(ctx context.Context, staleAfter time.Duration) (Stats, error) {
	if s.connected() {
		st, err := s.durable.Stats(ctx, staleAfter)
		if err == nil {
			st.Mode = ModeConnected
			return st, nil
		}
		s.degrade(ctx, "stats", err)
	}
	st, err := s.memory.Stats(ctx, staleAfter)
	st.Mode = ModeDegraded
	return st, err
}
