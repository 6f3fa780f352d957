package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "github.com/Eternity714/KatelyaTV/internal/api/http"
	"github.com/Eternity714/KatelyaTV/internal/app"
	"github.com/Eternity714/KatelyaTV/internal/metrics"
	"github.com/Eternity714/KatelyaTV/internal/providers/hls"
	"github.com/Eternity714/KatelyaTV/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "katelyatv")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "katelyatv"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("storage", cfg.StorageType),
		slog.Duration("searchTimeout", cfg.SearchTimeout),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Int("maxPage", cfg.Site.SearchDownstreamMaxPage),
		slog.Bool("cacheDisabled", cfg.CacheDisabled),
		slog.Duration("cacheTTL", cfg.CacheTTL),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("hasProxy", strings.TrimSpace(cfg.UpstreamProxyURL) != ""),
		slog.Bool("signedTokens", cfg.JWTSecret != ""),
		slog.String("sourcesFile", cfg.SourcesFile),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := app.Build(rootCtx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer components.Close()

	handler := apihttp.NewServer(components.Search,
		apihttp.WithLogger(logger),
		apihttp.WithAuth(components.Verifier),
		apihttp.WithSourceAdmin(components.Registry, components.Admin),
		apihttp.WithSiteConfig(components.SiteConfig),
		apihttp.WithPreferences(components.Preferences),
		apihttp.WithStreamProber(hls.NewProber(components.HTTPClient, cfg.UserAgent)),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// /api/search/stream stays open until the slowest source answers.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("katelyatv search service started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			components.Close()
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("katelyatv search service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
