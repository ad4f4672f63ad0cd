package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"csgo-pricer/internal/pricing"
)

type metaEntry struct {
	value string
	at    time.Time
}

// MemoryStore keeps records for the life of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[pricing.RecordKey]*pricing.PriceRecord
	history map[string]map[time.Time]pricing.HistoryPoint
	meta    map[string]metaEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[pricing.RecordKey]*pricing.PriceRecord),
		history: make(map[string]map[time.Time]pricing.HistoryPoint),
		meta:    make(map[string]metaEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key pricing.RecordKey) (*pricing.PriceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, rec *pricing.PriceRecord) (*pricing.PriceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := rec.Clone()
	stored.UpdateCount = 1
	if prev, ok := m.records[rec.Key()]; ok {
		stored.UpdateCount = prev.UpdateCount + 1
	}
	m.records[rec.Key()] = stored
	if h := rec.Metadata.History; h != nil {
		m.putHistoryLocked(rec.BaseName, h.Points)
	}
	return stored.Clone(), nil
}

// load stores rec exactly as given, keeping the update count of a copy
// already persisted elsewhere.
func (m *MemoryStore) load(rec *pricing.PriceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Key()] = rec.Clone()
	if h := rec.Metadata.History; h != nil {
		m.putHistoryLocked(rec.BaseName, h.Points)
	}
}

func (m *MemoryStore) putHistoryLocked(baseName string, points []pricing.HistoryPoint) {
	days := m.history[baseName]
	if days == nil {
		days = make(map[time.Time]pricing.HistoryPoint)
		m.history[baseName] = days
	}
	for _, p := range points {
		p.Date = dayOf(p.Date)
		days[p.Date] = p
	}
}

func (m *MemoryStore) ListStale(_ context.Context, olderThan time.Duration, limit int) ([]*pricing.PriceRecord, error) {
	cutoff := m.now().Add(-olderThan)
	m.mu.RLock()
	var out []*pricing.PriceRecord
	for _, rec := range m.records {
		if rec.LastUpdated.Before(cutoff) {
			out = append(out, rec.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.Before(out[j].LastUpdated) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) List(_ context.Context, offset, limit int) ([]*pricing.PriceRecord, error) {
	m.mu.RLock()
	out := make([]*pricing.PriceRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BaseName != out[j].BaseName {
			return out[i].BaseName < out[j].BaseName
		}
		return out[i].Currency < out[j].Currency
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) TouchFetchAttempt(_ context.Context, key pricing.RecordKey, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[key]; ok {
		rec.LastFetchAttempt = at
	}
	return nil
}

func (m *MemoryStore) History(_ context.Context, baseName string, since time.Time) ([]pricing.HistoryPoint, error) {
	m.mu.RLock()
	var out []pricing.HistoryPoint
	for day, p := range m.history[baseName] {
		if !day.Before(dayOf(since)) {
			out = append(out, p)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *MemoryStore) SetMeta(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = metaEntry{value: value, at: m.now()}
	return nil
}

func (m *MemoryStore) GetMeta(_ context.Context, key string) (string, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.meta[key]
	if !ok {
		return "", time.Time{}, ErrNotFound
	}
	return e.value, e.at, nil
}

func (m *MemoryStore) Stats(_ context.Context, staleAfter time.Duration) (Stats, error) {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Mode: ModeMemory, Records: int64(len(m.records))}
	for _, rec := range m.records {
		if !rec.IsFresh(now, staleAfter) {
			st.Stale++
		}
	}
	for _, days := range m.history {
		st.HistoryPoints += int64(len(days))
	}
	return st, nil
}
