// Package app wires configuration, the cache backend, the Graph client and
// the ingestion components for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"orgdash/internal/cache"
	"orgdash/internal/config"
	"orgdash/internal/ingest"
	"orgdash/internal/sharepoint"
	"orgdash/internal/storage"
)

const sweepInterval = 10 * time.Minute

type App struct {
	Config config.Config
	Logger *slog.Logger
	Store  cache.Store
	Keys   cache.Keys

	Tracker      *ingest.Tracker
	Orchestrator *ingest.Orchestrator
	Processor    *ingest.Processor
	Consolidator *ingest.Consolidator
	Catalog      *ingest.Catalog
	Runner       *ingest.Runner

	db   *storage.DB
	repo *storage.CacheRepo
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Keys: cache.Keys{Prefix: cfg.CachePrefix}}

	switch cfg.CacheBackend {
	case config.CacheBackendMemory:
		if cfg.Execution == config.ExecutionTemporal {
			logger.Warn("memory cache is not shared between processes; use it with inline execution only")
		}
		a.Store = cache.NewMemory()
	case config.CacheBackendPostgres:
		dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		db, err := storage.NewDB(dbCtx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(dbCtx); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		a.repo = storage.NewCacheRepo(db)
		a.Store = a.repo
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}

	tree := sharepoint.NewClient(ctx, sharepoint.Options{
		TenantID:          cfg.TenantID,
		ClientID:          cfg.ClientID,
		ClientSecret:      cfg.ClientSecret,
		SiteID:            cfg.SiteID,
		GraphBaseURL:      cfg.GraphBaseURL,
		LoginBaseURL:      cfg.LoginBaseURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, a.Store, a.Keys.AccessToken(), logger.With("component", "sharepoint"))
	a.wire(tree)
	return a, nil
}

func (a *App) wire(tree ingest.TreeClient) {
	cfg := a.Config
	a.Tracker = ingest.NewTracker(a.Store, a.Keys, a.Logger.With("component", "progress"))

	a.Orchestrator = ingest.NewOrchestrator(tree, a.Store, a.Keys, a.Tracker, a.Logger.With("component", "orchestrator"))
	a.Orchestrator.MaxDepth = cfg.MaxDepth
	a.Orchestrator.ChunkSize = cfg.ChunkSize

	a.Processor = ingest.NewProcessor(tree, a.Store, a.Keys, a.Tracker, a.Logger.With("component", "chunks"))
	a.Processor.BatchSize = cfg.MicroBatchSize
	a.Processor.BatchDelay = cfg.MicroBatchDelay

	a.Consolidator = ingest.NewConsolidator(a.Store, a.Keys, a.Tracker, a.Logger.With("component", "consolidator"))
	a.Catalog = ingest.NewCatalog(a.Store, a.Keys)

	a.Runner = ingest.NewRunner(a.Orchestrator, a.Processor, a.Consolidator, a.Logger.With("component", "runner"))
	a.Runner.MaxConcurrent = cfg.MaxConcurrentChunks
	a.Runner.ConsolidationDelay = cfg.ConsolidationDelay
	a.Runner.RecheckInterval = cfg.ConsolidationRecheck
	a.Runner.MaxChecks = cfg.MaxConsolidationChecks
}

// StartSweeper deletes expired cache rows until ctx is done. It is a no-op
// for the memory backend.
func (a *App) StartSweeper(ctx context.Context) {
	if a.repo == nil {
		return
	}
	go func() {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := a.repo.Sweep(ctx)
				if err != nil {
					a.Logger.Warn("sweep expired cache entries", "error", err)
					continue
				}
				if n > 0 {
					a.Logger.Debug("swept expired cache entries", "rows", n)
				}
			}
		}
	}()
}

func (a *App) Close() {
	a.db.Close()
}
