package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"csgo-pricer/internal/cache"
	"csgo-pricer/internal/pricing"
	"csgo-pricer/internal/refresh"
	"csgo-pricer/internal/resolver"
	steamService "csgo-pricer/internal/services/steam"
	"csgo-pricer/internal/store"
)

type PriceResolver interface {
	Resolve(ctx context.Context, key pricing.ItemKey, currency int) (*pricing.PriceAnswer, error)
	CacheStats(ctx context.Context) cache.Stats
	Counters() resolver.Counters
}

type BatchRefresher interface {
	RefreshBatch(ctx context.Context, max int) (refresh.Result, error)
}

type StatsStore interface {
	Stats(ctx context.Context, staleAfter time.Duration) (store.Stats, error)
	GetMeta(ctx context.Context, key string) (string, time.Time, error)
}

type UsageReporter interface {
	Usage() (used, budget int)
}

type SteamStatus interface {
	Configured() bool
	Status(ctx context.Context) steamService.Status
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Resolver   PriceResolver
	Refresher  BatchRefresher
	Store      StatsStore
	Limiter    UsageReporter
	Steam      SteamStatus
	AdminKey   string
	StaleAfter time.Duration
}

type APIHandler struct {
	Deps
}

// maxBatch bounds a single manual refresh.
const maxBatch = 1000

func SetupRoutes(r *gin.RouterGroup, d Deps) *APIHandler {
	handler := &APIHandler{Deps: d}

	r.GET("/price", handler.GetPrice)
	r.GET("/status", handler.GetStatus)

	r.GET("/cache/stats", handler.GetCacheStats)

	db := r.Group("/db")
	{
		db.GET("/stats", handler.GetStoreStats)
		db.POST("/update", handler.requireAdmin, handler.UpdatePrices)
	}

	return handler
}

type priceResponse struct {
	MarketHashName string              `json:"market_hash_name"`
	BaseName       string              `json:"base_name"`
	Wear           string              `json:"wear,omitempty"`
	StatTrak       bool                `json:"stattrak"`
	Price          *decimal.Decimal    `json:"price"`
	Slot           string              `json:"slot,omitempty"`
	Currency       int                 `json:"currency"`
	Prices         pricing.PriceMatrix `json:"prices"`
	Metadata       pricing.Metadata    `json:"metadata"`
	Source         string              `json:"source"`
	LastUpdated    time.Time           `json:"last_updated"`
	NotObtainable  bool                `json:"not_obtainable,omitempty"`
	Message        string              `json:"message,omitempty"`
}

func toResponse(ans *pricing.PriceAnswer) priceResponse {
	resp := priceResponse{
		MarketHashName: ans.Item.MarketHashName(),
		BaseName:       ans.Item.BaseName,
		StatTrak:       ans.Item.Tracked,
		Currency:       ans.Currency,
		Prices:         ans.Matrix,
		Metadata:       ans.Metadata,
		Source:         ans.Source,
		LastUpdated:    ans.LastUpdated,
		NotObtainable:  ans.NotObtainable,
		Message:        ans.Message,
	}
	if ans.Item.Wear != pricing.WearNone {
		resp.Wear = ans.Item.Wear.Key()
	}
	if !ans.NotObtainable {
		p := ans.Price
		resp.Price = &p
		resp.Slot = ans.Slot.String()
	}
	return resp
}

// parseItem reads either ?market_hash_name= or ?name=&wear=&stattrak=.
func parseItem(c *gin.Context) (pricing.ItemKey, int, error) {
	currency := 0
	if v := c.Query("currency"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return pricing.ItemKey{}, 0, errors.New("currency must be a positive Steam currency code")
		}
		currency = n
	}

	if mhn := strings.TrimSpace(c.Query("market_hash_name")); mhn != "" {
		key, err := pricing.ParseMarketHashName(mhn)
		return key, currency, err
	}

	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		return pricing.ItemKey{}, 0, errors.New("name or market_hash_name is required")
	}
	key := pricing.ItemKey{BaseName: name}
	if v := c.Query("wear"); v != "" {
		w, err := pricing.ParseWear(v)
		if err != nil {
			return pricing.ItemKey{}, 0, err
		}
		key.Wear = w
	}
	if v := c.Query("stattrak"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return pricing.ItemKey{}, 0, errors.New("stattrak must be true or false")
		}
		key.Tracked = b
	}
	return key, currency, nil
}

// GET /api/v1/price
func (h *APIHandler) GetPrice(c *gin.Context) {
	key, currency, err := parseItem(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ans, err := h.Resolver.Resolve(c.Request.Context(), key, currency)
	if err != nil {
		if ans != nil {
			c.JSON(statusFor(err), toResponse(ans))
			return
		}
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "market_hash_name": key.MarketHashName()})
		return
	}
	c.JSON(http.StatusOK, toResponse(ans))
}

// statusFor maps resolver errors to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, resolver.ErrInvalidKey):
		return http.StatusBadRequest
	}
	switch pricing.KindOf(err) {
	case pricing.KindVariantNotObtainable:
		return http.StatusNotFound
	case pricing.KindPriceUnavailable, pricing.KindFetchFailed:
		return http.StatusServiceUnavailable
	case pricing.KindExtractMalformed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandler) requireAdmin(c *gin.Context) {
	if h.AdminKey == "" {
		c.Next()
		return
	}
	got := c.GetHeader("X-Admin-Key")
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.AdminKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
		return
	}
	c.Next()
}

// POST /api/v1/db/update?max_items=
func (h *APIHandler) UpdatePrices(c *gin.Context) {
	max := 0
	if v := c.Query("max_items"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_items must be a positive integer"})
			return
		}
		max = min(n, maxBatch)
	}

	res, err := h.Refresher.RefreshBatch(c.Request.Context(), max)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusRequestTimeout
		}
		c.JSON(code, gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/v1/cache/stats
func (h *APIHandler) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"cache":    h.Resolver.CacheStats(c.Request.Context()),
		"counters": h.Resolver.Counters(),
	})
}

// GET /api/v1/db/stats
func (h *APIHandler) GetStoreStats(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.Store.Stats(ctx, h.StaleAfter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"stats": st, "stale_after_hours": h.StaleAfter.Hours()}
	if v, _, err := h.Store.GetMeta(ctx, store.LastRefreshKey); err == nil {
		resp["last_refresh"] = v
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/v1/status
func (h *APIHandler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	used, budget := h.Limiter.Usage()
	resp := gin.H{
		"status":   "ok",
		"cache":    h.Resolver.CacheStats(ctx),
		"counters": h.Resolver.Counters(),
		"limiter":  gin.H{"used_today": used, "daily_budget": budget},
	}
	if st, err := h.Store.Stats(ctx, h.StaleAfter); err == nil {
		resp["store"] = st.Mode
	}
	if v, _, err := h.Store.GetMeta(ctx, store.LastRefreshKey); err == nil {
		resp["last_refresh"] = v
	}
	if h.Steam != nil && h.Steam.Configured() {
		resp["steam_api"] = h.Steam.Status(ctx)
	}
	c.JSON(http.StatusOK, resp)
}
