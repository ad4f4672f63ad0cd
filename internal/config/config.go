package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string // empty runs without a database
	RedisURL    string
	Port        string
	Environment string
	LogLevel    slog.Level
	AdminKey    string

	// Steam
	SteamAPIKey    string
	SteamAPIURL    string
	SteamCommunity string
	Currency       int
	AppID          int
	RequestDelay   time.Duration
	MaxDelay       time.Duration
	DailyLimit     int

	CSGOSkinsURL string

	StaleAfter   time.Duration
	HotCacheSize int
	HotCacheTTL  time.Duration
	FetchTimeout time.Duration

	RefreshInterval  time.Duration
	RefreshBatchSize int
}

func Load() *Config {
	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    ParseLevel(getEnv("LOG_LEVEL", "info")),
		AdminKey:    getEnv("ADMIN_KEY", ""),

		SteamAPIKey:    getEnv("STEAM_API_KEY", ""),
		SteamAPIURL:    getEnv("STEAM_API_BASE_URL", ""),
		SteamCommunity: getEnv("STEAM_COMMUNITY_BASE_URL", ""),
		Currency:       getEnvInt("STEAM_MARKET_CURRENCY", 1),
		AppID:          getEnvInt("STEAM_APPID", 730),
		RequestDelay:   getEnvDuration("STEAM_REQUEST_DELAY", 2*time.Second),
		MaxDelay:       getEnvDuration("STEAM_MAX_DELAY", 5*time.Second),
		DailyLimit:     getEnvInt("STEAM_DAILY_LIMIT", 0),

		CSGOSkinsURL: getEnv("CSGOSKINS_BASE_URL", ""),

		StaleAfter:   time.Duration(getEnvFloat("PRICE_STALE_DAYS", 7) * float64(24*time.Hour)),
		HotCacheSize: getEnvInt("HOT_CACHE_SIZE", 1000),
		HotCacheTTL:  getEnvDuration("HOT_CACHE_TTL", 4*time.Hour),
		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 30*time.Second),

		RefreshInterval:  getEnvDuration("REFRESH_INTERVAL", time.Hour),
		RefreshBatchSize: getEnvInt("REFRESH_BATCH_SIZE", 100),
	}
}

// ParseLevel accepts debug, info, warn and error; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return defaultValue
}

// getEnvDuration takes Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return f
	}
	return defaultValue
}
