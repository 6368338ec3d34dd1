// Package main is the entry point for the asg-runtime aggregation server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KathyBarabash/asg-runtime/internal/api"
	"github.com/KathyBarabash/asg-runtime/internal/cachefacade"
	"github.com/KathyBarabash/asg-runtime/internal/cachekv"
	"github.com/KathyBarabash/asg-runtime/internal/config"
	"github.com/KathyBarabash/asg-runtime/internal/executor"
	"github.com/KathyBarabash/asg-runtime/internal/httpfetch"
	"github.com/KathyBarabash/asg-runtime/internal/obs"
	"github.com/KathyBarabash/asg-runtime/internal/origin"
	"github.com/KathyBarabash/asg-runtime/internal/serializer"
	"github.com/KathyBarabash/asg-runtime/internal/stats"
	"github.com/KathyBarabash/asg-runtime/internal/transform"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(bootLogger)
	bootLogger.Info("starting asg-runtime")

	cfgManager, err := config.NewManager(*configPath, bootLogger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	defer func() { _ = cfgManager.Close() }()

	cfg := cfgManager.Get()

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if watchErr := cfgManager.Watch(ctx); watchErr != nil {
		logger.Warn("config hot-reload disabled", "error", watchErr)
	}

	exec, err := buildExecutor(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build executor: %w", err)
	}

	handler := api.New(exec, logger, cfg.Fetcher.MaxResponseBodyBytes)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	var root http.Handler = mux
	root = api.LoggingMiddleware(logger)(root)
	root = api.RecoveryMiddleware(logger)(root)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// newLogger builds the runtime's structured logger from config. It
// returns the plain slog logger underneath the obs.Logger, so log lines
// written through it are not passed through the credential redactor.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	l := obs.NewLogger(obs.LoggerConfig{
		Level:      level,
		Output:     os.Stdout,
		JSONFormat: cfg.Format != "text",
	}, obs.NewRedactor())
	return l.Slog()
}

// buildExecutor wires the response cache, origin cache, HTTP fetcher and
// transform registry into a single Executor.
func buildExecutor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*executor.Executor, error) {
	responseCache, err := buildCacheTier(ctx, cfg.ResponseCache, logger)
	if err != nil {
		return nil, fmt.Errorf("response cache: %w", err)
	}

	originCache, err := buildCacheTier(ctx, cfg.OriginCache, logger)
	if err != nil {
		return nil, fmt.Errorf("origin cache: %w", err)
	}

	httpFetcher := httpfetch.New(
		httpfetch.WithMaxBodyBytes(cfg.Fetcher.MaxResponseBodyBytes),
		httpfetch.WithPerHostRate(cfg.Fetcher.RateLimitPerSecond, cfg.Fetcher.RateLimitBurst),
	)

	originFetcher := origin.New(httpFetcher, originCache, origin.Settings{
		Timeout:      cfg.Fetcher.Timeout,
		MaxRetries:   cfg.Fetcher.MaxRetries,
		MaxPages:     cfg.Fetcher.MaxPages,
		RetryBackoff: cfg.Fetcher.RetryBackoff,
	}, logger)

	responseSer, err := serializer.ByName(cfg.ResponseCache.Serializer)
	if err != nil {
		return nil, fmt.Errorf("response serializer: %w", err)
	}

	return executor.New(executor.Options{
		Logger:             logger,
		ResponseCache:      responseCache,
		OriginCache:        originCache,
		OriginFetcher:      originFetcher,
		ResponseSerializer: responseSer,
		Transforms:         transform.Builtins,
		AppStats:           &stats.AppStats{},
	}), nil
}

// buildCacheTier constructs a cachefacade.Facade for one cache tier, or
// nil when the tier is disabled in config.
func buildCacheTier(ctx context.Context, tier config.CacheTierConfig, logger *slog.Logger) (*cachefacade.Facade, error) {
	if !tier.Enabled {
		return nil, nil
	}

	backend, err := cachekv.New(tier.Backend)
	if err != nil {
		return nil, err
	}

	ser, err := serializer.ByName(tier.Serializer)
	if err != nil {
		return nil, err
	}

	facade, err := cachefacade.New(backend, ser, logger)
	if err != nil {
		return nil, err
	}
	if err := facade.Init(ctx); err != nil {
		return nil, fmt.Errorf("init backend: %w", err)
	}
	return facade, nil
}
