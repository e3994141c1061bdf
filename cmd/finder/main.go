package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/marco/movieFinder/internal/config"
	"github.com/marco/movieFinder/internal/metadata"
	"github.com/marco/movieFinder/internal/metrics"
	"github.com/marco/movieFinder/internal/server"
	"github.com/marco/movieFinder/internal/telemetry"
)

var (
	configPath = flag.String("config", "./config/config.yaml", "Path to configuration file")
	verbose    = flag.Bool("verbose", false, "Show detailed logging")
	noWatch    = flag.Bool("no-watch", false, "Do not reload the configuration file on change")
)

func main() {
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("movie finder stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	var logLevel slog.LevelVar
	setLogLevel(&logLevel, cfg.Log.Level)
	logger := newLogger(&logLevel, cfg.Log.Format)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.Init(rootCtx, telemetry.Config{
		ServiceName: "moviefinder",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		SampleRate:  cfg.Telemetry.SampleRate,
	})
	if err != nil {
		logger.Warn("otel init failed", "error", err)
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		"config", *configPath,
		"addr", cfg.Server.Addr,
		"trending_backend", cfg.Trending.Backend,
		"log_level", cfg.Log.Level,
		"log_format", cfg.Log.Format,
		"debounce", cfg.Search.DebounceDelay(),
		"tracing", cfg.Telemetry.OTLPEndpoint != "",
	)

	store, err := openStore(rootCtx, cfg.Trending)
	if err != nil {
		return fmt.Errorf("failed to open trending store: %w", err)
	}
	defer store.Close()
	logger.Info("trending store ready", "backend", cfg.Trending.Backend)

	tmdbClient := metadata.NewClientWithConfig(metadata.ClientConfig{
		APIKey:            cfg.TMDB.APIKey,
		BaseURL:           cfg.TMDB.BaseURL,
		Language:          cfg.TMDB.Language,
		Timeout:           cfg.TMDB.Timeout(),
		RequestsPerSecond: cfg.TMDB.RequestsPerSecond,
		MaxAttempts:       cfg.TMDB.MaxAttempts,
		InitialBackoffMs:  cfg.TMDB.InitialBackoffMs,
		Transport:         otelhttp.NewTransport(http.DefaultTransport),
		RetryLogFunc: func(attempt, maxAttempts int, backoff time.Duration, err error) {
			logger.Warn("TMDB request failed, retrying",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"backoff", backoff,
				"error", err,
			)
		},
	})

	srv := server.New(tmdbClient, store, server.Config{
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		TrendingLimit:  cfg.Trending.Limit,
		RecordTimeout:  cfg.Trending.RecordTimeout(),
		DebounceDelay:  cfg.Search.DebounceDelay(),
		PreviewWorkers: cfg.Server.PreviewWorkers,
		PreviewSize:    cfg.Server.PreviewSize,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           otelhttp.NewHandler(srv.Handler(), "moviefinder"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		logger.Info("movie finder started", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	refresher := newTrendingRefresher(store, srv.Hub(), cfg.Trending.Limit, logger)
	g.Go(func() error {
		refresher.Run(ctx, cfg.Trending.RefreshInterval())
		return nil
	})

	if !*noWatch {
		watcher, err := config.NewWatcher(*configPath, 250*time.Millisecond, func(next *config.Config) {
			tmdbClient.SetAPIKey(next.TMDB.APIKey)
			setLogLevel(&logLevel, next.Log.Level)
		}, logger)
		if err != nil {
			logger.Warn("config watch disabled", "error", err)
		} else {
			g.Go(func() error { return watcher.Run(ctx) })
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Hub().Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown error", "error", err)
		}
		srv.Wait()
		return nil
	})

	err = g.Wait()
	logger.Info("movie finder stopped")
	return err
}

func newLogger(level *slog.LevelVar, format string) *slog.Logger {
	if *verbose {
		level.Set(slog.LevelDebug)
	}
	options := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func setLogLevel(level *slog.LevelVar, raw string) {
	if *verbose {
		level.Set(slog.LevelDebug)
		return
	}
	parsed, err := config.ParseLevel(raw)
	if err != nil {
		slog.Warn("ignoring log level", "error", err)
		return
	}
	level.Set(parsed)
}
