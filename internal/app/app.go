// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/sold-listings-crawler/internal/clock/system"
	"github.com/JakeFAU/sold-listings-crawler/internal/config"
	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/sold-listings-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/sold-listings-crawler/internal/frontier"
	"github.com/JakeFAU/sold-listings-crawler/internal/hash/sha256"
	"github.com/JakeFAU/sold-listings-crawler/internal/parser"
	"github.com/JakeFAU/sold-listings-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/sold-listings-crawler/internal/resolver"
	"github.com/JakeFAU/sold-listings-crawler/internal/storage"
	"github.com/JakeFAU/sold-listings-crawler/internal/storage/local"
	"github.com/JakeFAU/sold-listings-crawler/internal/storage/memory"
	"github.com/JakeFAU/sold-listings-crawler/internal/storage/postgres"
	"github.com/JakeFAU/sold-listings-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/sold-listings-crawler/internal/telemetry"
)

// App holds the services of one process: the relational store, the optional page
// archive and the crawl engine built on top of them.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	store   crawler.Store
	archive crawler.Archive
	engine  *crawler.Engine
	tracer  *sdktrace.TracerProvider
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the configuration the services were built from.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetStore exposes the relational store.
func (a *App) GetStore() crawler.Store {
	return a.store
}

// GetArchive returns the raw page archive, or nil when archiving is disabled.
func (a *App) GetArchive() crawler.Archive {
	return a.archive
}

// GetEngine returns the crawl engine.
func (a *App) GetEngine() *crawler.Engine {
	return a.engine
}

// NewApp creates every service from cfg. It fails fast if the store cannot be opened.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Initializing application services...", zap.String("store", cfg.Store.Driver))

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.ServiceName,
		sdktrace.WithSyncer(telemetry.NewLogExporter(logger.Named("trace"))))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	var archive crawler.Archive
	if cfg.Crawler.ArchiveDir != "" {
		blobs, err := local.New(local.Config{BaseDir: cfg.Crawler.ArchiveDir})
		if err != nil {
			_ = store.Close()
			_ = tp.Shutdown(ctx)
			return nil, fmt.Errorf("failed to initialize archive: %w", err)
		}
		logger.Info("Archiving raw detail pages", zap.String("dir", cfg.Crawler.ArchiveDir))
		archive = storage.NewPageArchive(blobs, sha256.New(), system.New())
	} else if cfg.Store.Driver == config.DriverMemory {
		archive = storage.NewPageArchive(&storage.NoOpProvider{}, sha256.New(), system.New())
	}

	robots := collyfetcher.NewRobotsEnforcer(cfg.Crawler.UserAgent, cfg.Crawler.RequestTimeout, logger.Named("robots"))
	gate := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.Crawler.RequestTimeout,
	}, robots, ratelimit.New(cfg.Crawler.Delay), logger.Named("fetch"))
	pages := parser.New(logger.Named("parser"))
	front := frontier.New(frontier.Config{
		Origin:         cfg.Crawler.Origin,
		CheckpointFile: cfg.Crawler.CheckpointFile,
	}, store, gate, pages, logger.Named("frontier"))
	res := resolver.New(store, logger.Named("resolver"))

	engine := crawler.NewEngine(front, gate, pages, res, archive, logger.Named("engine"))

	logger.Info("Application services initialized successfully.")
	return &App{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		archive: archive,
		engine:  engine,
		tracer:  tp,
	}, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (crawler.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		logger.Info("Connecting to PostgreSQL...")
		return postgres.NewStore(ctx, postgres.Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns}, logger.Named("postgres"))
	case config.DriverSQLite:
		logger.Info("Opening SQLite database", zap.String("path", cfg.DSN))
		return sqlite.Open(ctx, sqlite.Config{Path: cfg.DSN}, logger.Named("sqlite"))
	case config.DriverMemory:
		logger.Info("Using in-memory store. Records are discarded on exit.")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

// Close shuts down the services in the App container.
func (a *App) Close() {
	a.logger.Info("Shutting down application services...")
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Error closing store", zap.Error(err))
	}
	if err := a.tracer.Shutdown(context.Background()); err != nil {
		a.logger.Warn("Error shutting down tracer provider", zap.Error(err))
	}
	// Sync fails on some terminals; nothing useful can be done about it.
	_ = a.logger.Sync()
}
