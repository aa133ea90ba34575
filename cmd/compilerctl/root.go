// Package main implements compilerctl, the operator control surface for
// the filter list compiler service: triggering a compile, warming the
// cache, and inspecting source health from the command line rather than
// over HTTP.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/adblock-compiler/internal/cachingdownloader"
	"github.com/vitaliisemenov/adblock-compiler/internal/coalescer"
	"github.com/vitaliisemenov/adblock-compiler/internal/config"
	"github.com/vitaliisemenov/adblock-compiler/internal/downloader"
	"github.com/vitaliisemenov/adblock-compiler/internal/kv"
	"github.com/vitaliisemenov/adblock-compiler/internal/pipeline"
	"github.com/vitaliisemenov/adblock-compiler/internal/resultcache"
	"github.com/vitaliisemenov/adblock-compiler/internal/snapshot"
	"github.com/vitaliisemenov/adblock-compiler/internal/transform"
	"github.com/vitaliisemenov/adblock-compiler/internal/workflow"
	"github.com/vitaliisemenov/adblock-compiler/pkg/logger"
	"github.com/vitaliisemenov/adblock-compiler/pkg/metrics"
)

// CLI bundles the components an operator command needs. Every command
// builds one from a freshly loaded Config rather than sharing a
// long-lived process, since each invocation is a one-shot operation.
type CLI struct {
	store       kv.Store
	tracker     *snapshot.Tracker
	pipeline    *pipeline.Engine
	coordinator *workflow.Coordinator
	logger      *slog.Logger
}

func newCLI(configPath string) (*CLI, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.NewLogger(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})

	store, err := newStore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
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

	return &CLI{
		store:       store,
		tracker:     tracker,
		pipeline:    pipe,
		coordinator: coordinator,
		logger:      log,
	}, nil
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

func rootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "compilerctl",
		Short: "Filter list compiler operator CLI",
		Long:  "Trigger compiles, warm the source cache, and inspect source health without going through the HTTP surface.",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")

	cmd.AddCommand(
		compileCommand(&configPath),
		cacheCommand(&configPath),
		healthCommand(&configPath),
	)

	return cmd
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
