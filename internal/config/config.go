package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-tunable knob. It is loaded once at startup
// and passed down by constructor injection.
type Config struct {
	// Server
	Host string
	Port int

	// Database
	DBPath string

	// Upstream
	UpstreamURL     string
	UpstreamTimeout time.Duration

	// Session
	SessionTimeout         time.Duration
	SessionCleanupInterval time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Cache
	CacheTTLPrice          int
	CacheTTLHistorical     int
	CacheTTLIndicator      int
	CacheCleanupInterval   time.Duration

	// Query limits
	MaxQueryLength int

	// Circuit breaker
	BreakerFailureThreshold uint32
	BreakerOpenTimeout      time.Duration

	// Logging
	LogLevel string

	// Admin diagnostics
	AdminToken string
}

func Load() *Config {
	return &Config{
		Host: envOr("HOST", "0.0.0.0"),
		Port: envInt("PORT", 8000),

		DBPath: envOr("DB_PATH", "./chattwelve.db"),

		UpstreamURL:     envOr("UPSTREAM_URL", "http://localhost:3847"),
		UpstreamTimeout: envSeconds("UPSTREAM_TIMEOUT_SECONDS", 30),

		SessionTimeout:         envMinutes("SESSION_TIMEOUT_MINUTES", 60),
		SessionCleanupInterval: envMinutes("SESSION_CLEANUP_INTERVAL_MINUTES", 15),

		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   envSeconds("RATE_LIMIT_WINDOW_SECONDS", 60),

		CacheTTLPrice:        envInt("CACHE_TTL_PRICE", 45),
		CacheTTLHistorical:   envInt("CACHE_TTL_HISTORICAL", 300),
		CacheTTLIndicator:    envInt("CACHE_TTL_INDICATOR", 300),
		CacheCleanupInterval: envMinutes("CACHE_CLEANUP_INTERVAL_MINUTES", 5),

		MaxQueryLength: envInt("MAX_QUERY_LENGTH", 5000),

		BreakerFailureThreshold: uint32(envInt("BREAKER_FAILURE_THRESHOLD", 5)),
		BreakerOpenTimeout:      envSeconds("BREAKER_OPEN_TIMEOUT_SECONDS", 30),

		LogLevel: envOr("LOG_LEVEL", "info"),

		AdminToken: envOr("ADMIN_TOKEN", ""),
	}
}

func (c *Config) Validate() error {
	if c.UpstreamURL == "" {
		return errors.New("missing required env: UPSTREAM_URL")
	}
	if c.MaxQueryLength <= 0 {
		return errors.New("MAX_QUERY_LENGTH must be positive")
	}
	if c.RateLimitRequests <= 0 {
		return errors.New("RATE_LIMIT_REQUESTS must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envSeconds(key string, fallbackSeconds int) time.Duration {
	return time.Duration(envInt(key, fallbackSeconds)) * time.Second
}

func envMinutes(key string, fallbackMinutes int) time.Duration {
	return time.Duration(envInt(key, fallbackMinutes)) * time.Minute
}
