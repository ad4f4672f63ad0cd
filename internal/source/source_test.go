package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"csgo-pricer/internal/pricing"
	"csgo-pricer/internal/ratelimit"
)

type countingWaiter struct {
	calls atomic.Int32
	err   error
}

func (w *countingWaiter) Wait(ctx context.Context) error {
	w.calls.Add(1)
	if w.err != nil {
		return w.err
	}
	return ctx.Err()
}

func TestSlug(t *testing.T) {
	for in, want := range map[string]string{
		"AK-47 | Redline":            "ak-47-redline",
		"★ Karambit | Fade":          "karambit-fade",
		"Operation Broken Fang Case": "operation-broken-fang-case",
		"M4A1-S | Chantico's Fire":   "m4a1-s-chanticos-fire",
	} {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCSGOSkins_Fetch(t *testing.T) {
	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotUA = r.URL.Path, r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	w := &countingWaiter{}
	src := NewCSGOSkins(srv.URL, 5*time.Second, w)
	key := pricing.ItemKey{BaseName: "AK-47 | Redline", Wear: pricing.FieldTested, Tracked: true}

	doc, err := src.Fetch(context.Background(), key, 1)
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/items/ak-47-redline" {
		t.Errorf("path %q", gotPath)
	}
	if gotUA != desktopProfile["User-Agent"] {
		t.Errorf("user agent %q", gotUA)
	}
	if string(doc.Body) != "<html>ok</html>" || doc.Source != "csgoskins" || doc.ContentType == "" {
		t.Errorf("doc %+v", doc)
	}
	if w.calls.Load() != 1 {
		t.Errorf("limiter calls: %d", w.calls.Load())
	}
}

func TestSteamListing_Fetch(t *testing.T) {
	var gotPath, gotCurrency, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotCurrency, gotUA = r.URL.Path, r.URL.Query().Get("currency"), r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	src := NewSteamListing(srv.URL, 730, 5*time.Second, &countingWaiter{})
	key := pricing.ItemKey{BaseName: "AK-47 | Redline", Wear: pricing.FieldTested, Tracked: true}
	if _, err := src.Fetch(context.Background(), key, 7); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/market/listings/730/StatTrak™ AK-47 | Redline (Field-Tested)" {
		t.Errorf("path %q", gotPath)
	}
	if gotCurrency != "7" {
		t.Errorf("currency %q", gotCurrency)
	}
	if gotUA == desktopProfile["User-Agent"] {
		t.Error("secondary strategy must present a different client identity")
	}
}

func TestSteamPriceOverview_Fetch(t *testing.T) {
	var q map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q = map[string]string{
			"appid":            r.URL.Query().Get("appid"),
			"currency":         r.URL.Query().Get("currency"),
			"market_hash_name": r.URL.Query().Get("market_hash_name"),
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`{"success":true,"lowest_price":"$1.23"}`))
	}))
	defer srv.Close()

	src := NewSteamPriceOverview(srv.URL, 0, 5*time.Second, &countingWaiter{})
	doc, err := src.Fetch(context.Background(), pricing.ItemKey{BaseName: "Operation Broken Fang Case"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if q["appid"] != "730" || q["currency"] != "1" || q["market_hash_name"] != "Operation Broken Fang Case" {
		t.Errorf("query %v", q)
	}
	if doc.ContentType != "application/json" {
		t.Errorf("content type %q", doc.ContentType)
	}
}

func TestFetch_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	key := pricing.ItemKey{BaseName: "AK-47 | Redline"}

	_, err := NewCSGOSkins(srv.URL, 5*time.Second, &countingWaiter{}).Fetch(context.Background(), key, 1)
	if !errors.Is(err, pricing.ErrFetchFailed) {
		t.Errorf("status: got %v", err)
	}

	_, err = NewCSGOSkins(srv.URL, 5*time.Second, &countingWaiter{err: ratelimit.ErrBudgetExhausted}).Fetch(context.Background(), key, 1)
	if !errors.Is(err, pricing.ErrFetchFailed) || !errors.Is(err, ratelimit.ErrBudgetExhausted) {
		t.Errorf("budget: got %v", err)
	}

	// a closed port fails at the transport
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	_, err = NewCSGOSkins(deadURL, 5*time.Second, &countingWaiter{}).Fetch(context.Background(), key, 1)
	if !errors.Is(err, pricing.ErrFetchFailed) {
		t.Errorf("transport: got %v", err)
	}
}

func TestFetch_CancelledIsNotAPriceError(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewCSGOSkins(srv.URL, 5*time.Second, &countingWaiter{}).Fetch(ctx, pricing.ItemKey{BaseName: "x"}, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
	if pricing.KindOf(err) != 0 {
		t.Errorf("cancellation classified as %v", pricing.KindOf(err))
	}
}
