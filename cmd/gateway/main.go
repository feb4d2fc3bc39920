package main

import (
	"log/slog"
	"os"

	"github.com/sherajdev/chattwelve/internal/cache"
	"github.com/sherajdev/chattwelve/internal/config"
	"github.com/sherajdev/chattwelve/internal/events"
	"github.com/sherajdev/chattwelve/internal/janitor"
	"github.com/sherajdev/chattwelve/internal/orchestrator"
	"github.com/sherajdev/chattwelve/internal/server"
	"github.com/sherajdev/chattwelve/internal/session"
	"github.com/sherajdev/chattwelve/internal/store"
	"github.com/sherajdev/chattwelve/internal/upstream"
)

var version = "dev"

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logHandler := events.NewLogHandler(level, 1000)
	logger := slog.New(logHandler)
	slog.SetDefault(logger)
	slog.Info("chattwelve starting", "version", version)

	s, err := store.New(cfg.DBPath)
	if err != nil {
		slog.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer s.Close()
	slog.Info("database ready", "path", cfg.DBPath)

	bus := events.NewBus(200)

	gate := session.New(s, cfg.SessionTimeout, cfg.RateLimitWindow, cfg.RateLimitRequests)

	cacheLayer := cache.New(s, cache.TTLConfig{
		Price:      cfg.CacheTTLPrice,
		Quote:      cfg.CacheTTLPrice,
		Historical: cfg.CacheTTLHistorical,
		Indicator:  cfg.CacheTTLIndicator,
	})

	upstreamClient := upstream.New(upstream.Config{
		BaseURL:          cfg.UpstreamURL,
		Timeout:          cfg.UpstreamTimeout,
		FailureThreshold: cfg.BreakerFailureThreshold,
		OpenTimeout:      cfg.BreakerOpenTimeout,
	})

	orch := orchestrator.New(gate, cacheLayer, upstreamClient, cfg.RateLimitRequests, bus, logger)

	j := janitor.New(s, cacheLayer, bus, cfg.SessionTimeout, logger)
	if err := j.Start(cfg.SessionCleanupInterval, cfg.CacheCleanupInterval); err != nil {
		slog.Error("janitor start failed", "error", err)
		os.Exit(1)
	}
	defer j.Stop()

	srv := server.New(cfg, s, gate, orch, cacheLayer, bus, logHandler)
	if err := srv.Run(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
