package source

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"csgo-pricer/internal/pricing"
)

const DefaultCSGOSkinsURL = "https://csgoskins.gg"

var slugStrip = regexp.MustCompile(`[^\w-]`)

// Slug derives the item page path segment from a base name:
// "AK-47 | Redline" -> "ak-47-redline".
func Slug(baseName string) string {
	s := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(baseName), "★ "))
	s = strings.ReplaceAll(s, " | ", "-")
	s = strings.ReplaceAll(s, " ", "-")
	return slugStrip.ReplaceAllString(s, "")
}

// CSGOSkins is the primary strategy. Its item pages list every wear and
// StatTrak price for a base name.
type CSGOSkins struct {
	client  *resty.Client
	limiter Waiter
}

func NewCSGOSkins(baseURL string, timeout time.Duration, limiter Waiter) *CSGOSkins {
	if baseURL == "" {
		baseURL = DefaultCSGOSkinsURL
	}
	return &CSGOSkins{
		client:  newClient(baseURL, timeout, desktopProfile),
		limiter: limiter,
	}
}

func (s *CSGOSkins) Name() string { return "csgoskins" }

// Fetch ignores currency: the page prices in whatever the site serves.
func (s *CSGOSkins) Fetch(ctx context.Context, key pricing.ItemKey, _ int) (*pricing.Document, error) {
	return get(ctx, s.limiter, s.client, s.Name(), "/items/"+Slug(key.BaseName), key)
}
