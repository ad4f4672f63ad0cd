// Package source fetches raw price documents. Each strategy talks to one
// upstream with its own client identity; the resolver tries them in order.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"csgo-pricer/internal/pricing"
	"csgo-pricer/internal/ratelimit"
)

// Source is one fetch strategy.
type Source interface {
	Name() string
	Fetch(ctx context.Context, key pricing.ItemKey, currency int) (*pricing.Document, error)
}

// Waiter is the politeness gate every strategy passes before a request.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Profile is the header set a strategy presents.
type Profile map[string]string

var desktopProfile = Profile{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Cache-Control":   "no-cache",
	"Referer":         "https://www.google.com/",
}

var mobileProfile = Profile{
	"User-Agent":      "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.8",
	"Cache-Control":   "no-cache",
}

var jsonProfile = Profile{
	"User-Agent": "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Accept":     "application/json, text/javascript, */*; q=0.01",
}

func newClient(baseURL string, timeout time.Duration, p Profile) *resty.Client {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetBaseURL(baseURL)
	client.SetHeaders(p)
	return client
}

// get waits for a turn, issues the request and classifies the outcome.
// Cancellation is returned as the context error, everything else as
// FetchFailed.
func get(ctx context.Context, limiter Waiter, client *resty.Client, name, path string, key pricing.ItemKey) (*pricing.Document, error) {
	item := key.MarketHashName()
	if err := limiter.Wait(ctx); err != nil {
		if errors.Is(err, ratelimit.ErrBudgetExhausted) {
			return nil, &pricing.Error{Kind: pricing.KindFetchFailed, Item: item, Err: fmt.Errorf("%s: %w", name, err)}
		}
		return nil, err
	}

	resp, err := client.R().SetContext(ctx).Get(path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &pricing.Error{Kind: pricing.KindFetchFailed, Item: item, Err: fmt.Errorf("%s: %w", name, err)}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, pricing.Errorf(pricing.KindFetchFailed, item, "%s: status %d from %s", name, resp.StatusCode(), resp.Request.URL)
	}

	return &pricing.Document{
		Source:      name,
		URL:         resp.Request.URL,
		ContentType: resp.Header().Get("Content-Type"),
		Body:        resp.Body(),
		FetchedAt:   resp.ReceivedAt(),
	}, nil
}
