// Package main is the entry point for the filter list compiler service.
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

	"github.com/vitaliisemenov/adblock-compiler/internal/analytics"
	"github.com/vitaliisemenov/adblock-compiler/internal/cachingdownloader"
	"github.com/vitaliisemenov/adblock-compiler/internal/coalescer"
	"github.com/vitaliisemenov/adblock-compiler/internal/config"
	"github.com/vitaliisemenov/adblock-compiler/internal/downloader"
	"github.com/vitaliisemenov/adblock-compiler/internal/httpapi"
	"github.com/vitaliisemenov/adblock-compiler/internal/kv"
	"github.com/vitaliisemenov/adblock-compiler/internal/pipeline"
	"github.com/vitaliisemenov/adblock-compiler/internal/ratelimit"
	"github.com/vitaliisemenov/adblock-compiler/internal/resultcache"
	"github.com/vitaliisemenov/adblock-compiler/internal/snapshot"
	"github.com/vitaliisemenov/adblock-compiler/internal/transform"
	"github.com/vitaliisemenov/adblock-compiler/internal/workflow"
	"github.com/vitaliisemenov/adblock-compiler/pkg/logger"
	"github.com/vitaliisemenov/adblock-compiler/pkg/metrics"
)

const serviceName = "adblock-compiler"

func main() {
	var configPath = flag.String("config", "", "Path to a YAML configuration file")
	var showVersion = flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, httpapi.Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	slog.SetDefault(log)

	log.Info("starting service", "service", serviceName, "version", httpapi.Version, "storage_backend", cfg.Storage.Backend)

	store, err := newStore(cfg, log)
	if err != nil {
		log.Error("failed to initialize storage backend", "error", err)
		os.Exit(1)
	}

	registry := metrics.NewMetricsRegistry(cfg.Metrics.Namespace)

	tracker := snapshot.New(store, log, registry.Workflow(), 0)

	dl := downloader.New(downloader.Config{
		Timeout:    cfg.Downloader.Timeout,
		MaxRetries: cfg.Downloader.MaxRetries,
	}, log, registry.Pipeline())

	cachingDl := cachingdownloader.New(dl, store, tracker, cachingdownloader.Config{
		Enabled:       true,
		TTL:           cfg.Cache.TTL,
		DetectChanges: true,
		MonitorHealth: true,
	}, log)

	pipe := pipeline.New(cachingDl, transform.NewRegistry(), 0, log, registry.Pipeline())
	cache := resultcache.New(store, cfg.Cache.TTL, log, registry.Cache())
	co := coalescer.New()

	engine := workflow.New(store, log, registry.Workflow())
	coordinator := workflow.NewCoordinator(engine, pipe, cache, co, tracker, cachingDl)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(store, ratelimit.Config{
			Limit:  cfg.RateLimit.RequestsLimit,
			Window: cfg.RateLimit.Window,
		}, registry.Workflow())
	}

	analyticsCtx, stopAnalytics := context.WithCancel(context.Background())
	emitter := analytics.New(nil, log)
	emitter.Start(analyticsCtx)

	apiServer := httpapi.NewServer(httpapi.Config{
		Pipeline:    pipe,
		Cache:       cache,
		Coalescer:   co,
		Coordinator: coordinator,
		Engine:      engine,
		Tracker:     tracker,
		Limiter:     limiter,
		Analytics:   emitter,
		Logger:      log,
		Registry:    registry,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("http server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	log.Info("shutting down server")

	shutdownTimeout := cfg.Server.GracefulShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	stopAnalytics()
	emitter.Stop()

	log.Info("server exited")
}

func newStore(cfg *config.Config, log *slog.Logger) (kv.Store, error) {
	switch cfg.Storage.Backend {
	case "redis":
		return kv.NewRedisStore(kv.RedisConfig{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		}, log)
	default:
		return kv.NewMemoryStore(cfg.Storage.MemoryMaxEntries)
	}
}
