package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"csgo-pricer/internal/pricing"
	"csgo-pricer/internal/store"
)

type stubRefresher struct {
	mu   sync.Mutex
	keys []pricing.ItemKey
	fail map[string]error
}

func (s *stubRefresher) ForceRefresh(_ context.Context, key pricing.ItemKey, _ int) (*pricing.PriceAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	if err := s.fail[key.BaseName]; err != nil {
		return nil, err
	}
	return &pricing.PriceAnswer{Item: key}, nil
}

func seed(t *testing.T, st store.Store, name string, age time.Duration, m pricing.PriceMatrix) {
	t.Helper()
	rec := &pricing.PriceRecord{
		BaseName: name, Currency: 1, Catalog: pricing.DefaultCatalog,
		Matrix: m, LastUpdated: time.Now().Add(-age),
	}
	if _, err := st.Put(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newScheduler(st store.Store, r Refresher) *Scheduler {
	return New(st, r, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRefreshBatch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	day := 24 * time.Hour
	seed(t, st, "fresh", day, pricing.PriceMatrix{pricing.DefaultSlot: price("1")})
	seed(t, st, "AK-47 | Redline", 9*day, pricing.PriceMatrix{pricing.DefaultSlot: price("32.1")})
	seed(t, st, "★ Karambit | Fade", 20*day, pricing.PriceMatrix{
		{Wear: pricing.FactoryNew}:                price("1500"),
		{Wear: pricing.MinimalWear}:               price("1400"),
		{Tracked: true, Wear: pricing.FactoryNew}: price("2100"),
	})
	seed(t, st, "gone", 30*day, pricing.PriceMatrix{pricing.DefaultSlot: price("2")})

	r := &stubRefresher{fail: map[string]error{
		"gone": pricing.Errorf(pricing.KindPriceUnavailable, "gone", "all sources failed"),
	}}
	s := newScheduler(st, r)

	res, err := s.RefreshBatch(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Checked != 3 || res.Updated != 2 || res.Failed != 1 || len(res.Errors) != 1 {
		t.Errorf("result %+v", res)
	}

	want := []pricing.ItemKey{
		{BaseName: "gone", Wear: pricing.FieldTested},
		{BaseName: "★ Karambit | Fade", Wear: pricing.MinimalWear},
		{BaseName: "AK-47 | Redline", Wear: pricing.FieldTested},
	}
	if len(r.keys) != len(want) {
		t.Fatalf("refreshed %v", r.keys)
	}
	for i := range want {
		if r.keys[i] != want[i] {
			t.Errorf("refresh %d: got %v, want %v", i, r.keys[i], want[i])
		}
	}

	if v, _, err := st.GetMeta(ctx, store.LastRefreshKey); err != nil || v == "" {
		t.Errorf("last refresh not recorded: %q %v", v, err)
	}
}

func TestRefreshBatch_Limit(t *testing.T) {
	st := store.NewMemoryStore()
	for _, n := range []string{"a", "b", "c"} {
		seed(t, st, n, 10*24*time.Hour, pricing.PriceMatrix{pricing.DefaultSlot: price("1")})
	}
	r := &stubRefresher{}
	res, err := newScheduler(st, r).RefreshBatch(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Checked != 2 || len(r.keys) != 2 {
		t.Errorf("checked %d", res.Checked)
	}
}

func TestRefreshBatch_Cancelled(t *testing.T) {
	st := store.NewMemoryStore()
	seed(t, st, "a", 10*24*time.Hour, pricing.PriceMatrix{pricing.DefaultSlot: price("1")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &stubRefresher{}
	_, err := newScheduler(st, r).RefreshBatch(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}
	if len(r.keys) != 0 {
		t.Error("nothing should be refreshed after cancellation")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	st := store.NewMemoryStore()
	s := New(st, &stubRefresher{}, Config{Interval: 10 * time.Millisecond}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v", err)
	}
	if _, _, err := st.GetMeta(context.Background(), store.LastRefreshKey); err != nil {
		t.Errorf("at least one batch should have run: %v", err)
	}
}
