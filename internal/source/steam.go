package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"csgo-pricer/internal/pricing"
)

const DefaultSteamCommunityURL = "https://steamcommunity.com"

// SteamListing scrapes the public market listing page for one variant.
type SteamListing struct {
	client  *resty.Client
	limiter Waiter
	appID   int
}

func NewSteamListing(baseURL string, appID int, timeout time.Duration, limiter Waiter) *SteamListing {
	if baseURL == "" {
		baseURL = DefaultSteamCommunityURL
	}
	if appID == 0 {
		appID = pricing.DefaultCatalog
	}
	return &SteamListing{
		client:  newClient(baseURL, timeout, mobileProfile),
		limiter: limiter,
		appID:   appID,
	}
}

func (s *SteamListing) Name() string { return "steam_listing" }

func (s *SteamListing) Fetch(ctx context.Context, key pricing.ItemKey, currency int) (*pricing.Document, error) {
	path := fmt.Sprintf("/market/listings/%d/%s?currency=%d", s.appID, url.PathEscape(key.MarketHashName()), currency)
	return get(ctx, s.limiter, s.client, s.Name(), path, key)
}

// SteamPriceOverview asks the market's priceoverview endpoint, which
// answers with lowest and median prices as formatted strings.
type SteamPriceOverview struct {
	client  *resty.Client
	limiter Waiter
	appID   int
}

func NewSteamPriceOverview(baseURL string, appID int, timeout time.Duration, limiter Waiter) *SteamPriceOverview {
	if baseURL == "" {
		baseURL = DefaultSteamCommunityURL
	}
	if appID == 0 {
		appID = pricing.DefaultCatalog
	}
	return &SteamPriceOverview{
		client:  newClient(baseURL, timeout, jsonProfile),
		limiter: limiter,
		appID:   appID,
	}
}

func (s *SteamPriceOverview) Name() string { return "steam_priceoverview" }

func (s *SteamPriceOverview) Fetch(ctx context.Context, key pricing.ItemKey, currency int) (*pricing.Document, error) {
	q := url.Values{}
	q.Set("appid", strconv.Itoa(s.appID))
	q.Set("currency", strconv.Itoa(currency))
	q.Set("market_hash_name", key.MarketHashName())
	doc, err := get(ctx, s.limiter, s.client, s.Name(), "/market/priceoverview/?"+q.Encode(), key)
	if err != nil {
		return nil, err
	}
	// the endpoint sometimes answers text/html while sending JSON
	doc.ContentType = "application/json"
	return doc, nil
}
