package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/malaria-risk-index/internal/adapter/http"
	"github.com/couchcryptid/malaria-risk-index/internal/adapter/engineapi"
	kafkaadapter "github.com/couchcryptid/malaria-risk-index/internal/adapter/kafka"
	"github.com/couchcryptid/malaria-risk-index/internal/adapter/regions"
	"github.com/couchcryptid/malaria-risk-index/internal/config"
	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/engine/local"
	"github.com/couchcryptid/malaria-risk-index/internal/graph"
	"github.com/couchcryptid/malaria-risk-index/internal/index"
	"github.com/couchcryptid/malaria-risk-index/internal/lst"
	"github.com/couchcryptid/malaria-risk-index/internal/observability"
	"github.com/couchcryptid/malaria-risk-index/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := newEngine(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Error("engine setup failed", "error", err)
		os.Exit(1)
	}

	resolver, closeResolver, err := newResolver(ctx, cfg, logger)
	if err != nil {
		logger.Error("region resolver failed", "error", err)
		os.Exit(1)
	}

	var store *regions.Store
	if cfg.RegionCacheDir != "" {
		store, err = regions.OpenStore(cfg.RegionCacheDir)
		if err != nil {
			logger.Error("region store failed", "error", err)
			os.Exit(1)
		}
		logger.Info("region store opened", "dir", cfg.RegionCacheDir)
	}
	cached := regions.NewCachedResolver(resolver, store, cfg.RegionCacheSize, metrics, logger)

	var (
		publisher pipeline.ExportPublisher
		writer    *kafkaadapter.Writer
	)
	if cfg.ExportEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("export events enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("export events disabled")
	}

	providers := index.DefaultProviders(lst.Options{Sensor: cfg.Sensor, UseNDVI: cfg.UseNDVI}, cfg.NormalizeNDVI)
	p := pipeline.New(cached, engine, providers, cfg.Index, publisher, logger, metrics, cfg.EngineTimeout)
	p.MarkReady()

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, metrics, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start export publisher.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("export publisher error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("region store close error", "error", err)
		}
	}
	if err := closeResolver(); err != nil {
		logger.Error("region resolver close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// newEngine connects to the remote engine or loads the local catalog.
func newEngine(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (graph.Engine, error) {
	switch cfg.Engine {
	case config.EngineLocal:
		catalog, err := local.OpenCatalog(cfg.EngineCatalog)
		if err != nil {
			return nil, err
		}
		eng, err := catalog.Engine(logger)
		if err != nil {
			return nil, fmt.Errorf("load catalog %s: %w", cfg.EngineCatalog, err)
		}
		logger.Info("local engine loaded", "catalog", cfg.EngineCatalog, "datasets", len(catalog.IDs()),
			"width", catalog.Grid.W, "height", catalog.Grid.H)
		return eng, nil
	default:
		// The engine session is established once; failure is fatal.
		httpClient, err := engineapi.SessionFromFile(ctx, cfg.EngineCredentials, cfg.EngineTimeout)
		if err != nil {
			return nil, fmt.Errorf("engine session: %w", err)
		}
		logger.Info("engine session established", "url", cfg.EngineURL, "authenticated", cfg.EngineCredentials != "")
		return engineapi.NewClient(cfg.EngineURL, httpClient, metrics, logger), nil
	}
}

// newResolver opens the configured boundary source.
func newResolver(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.RegionResolver, func() error, error) {
	switch cfg.RegionSource {
	case config.RegionSourcePostGIS:
		r, err := regions.OpenPostGIS(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("region source: postgis")
		return r, r.Close, nil
	default:
		r, err := regions.LoadShapefile(cfg.RegionShapefile, cfg.RegionNameField, logger)
		if err != nil {
			return nil, nil, err
		}
		return r, func() error { return nil }, nil
	}
}
