// Package app wires the pricing pipeline from configuration. Every binary
// builds the same graph through New.
package app

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"csgo-pricer/internal/cache"
	"csgo-pricer/internal/config"
	"csgo-pricer/internal/database"
	"csgo-pricer/internal/extract"
	"csgo-pricer/internal/ratelimit"
	"csgo-pricer/internal/refresh"
	"csgo-pricer/internal/resolver"
	steamService "csgo-pricer/internal/services/steam"
	"csgo-pricer/internal/source"
	"csgo-pricer/internal/store"
)

type App struct {
	Config    *config.Config
	Log       *slog.Logger
	DB        *gorm.DB // nil when running without a database
	Store     *store.DegradableStore
	Cache     cache.HotCache
	Limiter   *ratelimit.Limiter
	Resolver  *resolver.Resolver
	Refresher *refresh.Scheduler
	Steam     *steamService.SteamService

	closers []func() error
}

// New builds the application. A missing or unreachable database or Redis
// is logged and the process continues on the in-memory tiers.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	var durable store.Durable
	if cfg.DatabaseURL != "" {
		db, err := database.Initialize(ctx, cfg.DatabaseURL, database.DefaultOptions(), log)
		if err != nil {
			log.WarnContext(ctx, "database unavailable", "error", err)
		} else {
			a.DB = db
			durable = store.NewDurableStore(db)
			a.closers = append(a.closers, func() error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			})
		}
	}
	a.Store = store.NewDegradableStore(ctx, durable, log)

	a.Cache = cache.NewLRU(cfg.HotCacheSize, cfg.HotCacheTTL)
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, cfg.HotCacheSize, cfg.HotCacheTTL, log)
		if err != nil {
			log.WarnContext(ctx, "redis unavailable, hot cache is process local", "error", err)
		} else {
			a.Cache = rc
			a.closers = append(a.closers, rc.Close)
		}
	}

	lcfg := ratelimit.DefaultConfig()
	lcfg.MinInterval = cfg.RequestDelay
	lcfg.MaxSleep = cfg.MaxDelay
	lcfg.DailyBudget = cfg.DailyLimit
	a.Limiter = ratelimit.New(lcfg)

	sources := []source.Source{
		source.NewCSGOSkins(cfg.CSGOSkinsURL, cfg.FetchTimeout, a.Limiter),
		source.NewSteamListing(cfg.SteamCommunity, cfg.AppID, cfg.FetchTimeout, a.Limiter),
		source.NewSteamPriceOverview(cfg.SteamCommunity, cfg.AppID, cfg.FetchTimeout, a.Limiter),
	}

	a.Resolver = resolver.New(a.Store, a.Cache, sources, extract.New(), resolver.Config{
		StaleAfter:      cfg.StaleAfter,
		FetchTimeout:    cfg.FetchTimeout,
		Catalog:         cfg.AppID,
		DefaultCurrency: cfg.Currency,
	}, log)

	a.Refresher = refresh.New(a.Store, a.Resolver, refresh.Config{
		StaleAfter: cfg.StaleAfter,
		BatchSize:  cfg.RefreshBatchSize,
		Interval:   cfg.RefreshInterval,
	}, log)

	a.Steam = steamService.NewSteamService(cfg.SteamAPIKey, cfg.SteamAPIURL, cfg.FetchTimeout)

	log.InfoContext(ctx, "pricing pipeline ready",
		"store", a.Store.Mode(), "hot_cache", a.Cache.Stats(ctx).Backend,
		"stale_after", cfg.StaleAfter, "steam_api", a.Steam.Configured())
	return a, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
