package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"orgdash/internal/cache"
	"orgdash/internal/metrics"
	"orgdash/internal/models"
)

const defaultSiteName = "SharePoint"

type PlanResult struct {
	RunID           string             `json:"run_id"`
	SiteName        string             `json:"site_name"`
	References      int                `json:"references"`
	Chunks          []models.ChunkPlan `json:"chunks"`
	Truncated       bool               `json:"truncated"`
	MaxDepthScanned int                `json:"max_depth_scanned"`
}

// Orchestrator prepares a run: it publishes the document count as soon as
// the tree is walked, partitions the references and resets progress.
type Orchestrator struct {
	tree      TreeClient
	collector *Collector
	tracker   *Tracker
	store     cache.Store
	keys      cache.Keys
	logger    *slog.Logger
	now       Clock

	MaxDepth  int
	ChunkSize int
}

func NewOrchestrator(tree TreeClient, store cache.Store, keys cache.Keys, tracker *Tracker, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		tree:      tree,
		collector: NewCollector(tree, logger),
		tracker:   tracker,
		store:     store,
		keys:      keys,
		logger:    logger,
		now:       time.Now,
		MaxDepth:  DefaultMaxDepth,
		ChunkSize: DefaultChunkSize,
	}
}

func (o *Orchestrator) WithClock(now Clock) *Orchestrator {
	if now != nil {
		o.now = now
	}
	return o
}

// Plan runs the synchronous head of an ingestion. On any failure it leaves
// an error placeholder in BasicStats before returning.
func (o *Orchestrator) Plan(ctx context.Context, runID string) (PlanResult, error) {
	res, err := o.plan(ctx, runID)
	if err != nil {
		o.logger.Error("ingestion plan failed", "run_id", runID, "error", err)
		o.PublishError(context.WithoutCancel(ctx))
		return res, err
	}
	return res, nil
}

func (o *Orchestrator) plan(ctx context.Context, runID string) (PlanResult, error) {
	res := PlanResult{RunID: runID}
	site, err := o.tree.SiteInfo(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch site info: %w", err)
	}
	res.SiteName = site.Name
	if res.SiteName == "" {
		res.SiteName = defaultSiteName
	}

	collected, err := o.collector.Collect(ctx, o.MaxDepth)
	if err != nil {
		return res, fmt.Errorf("collect references: %w", err)
	}
	res.References = len(collected.References)
	res.Truncated = collected.Truncated
	res.MaxDepthScanned = collected.MaxDepthScanned
	metrics.ReferencesCollected.Set(float64(res.References))
	if res.References == 0 {
		return res, ErrNoReferences
	}
	o.logger.Info("references collected", "run_id", runID, "references", res.References,
		"max_depth_scanned", res.MaxDepthScanned, "truncated", res.Truncated, "failed_folders", collected.FailedFolders)

	now := o.now().UTC()
	lastSync := site.LastModified
	if lastSync.IsZero() {
		lastSync = now
	}
	stats := models.BasicStats{
		DocumentCount:   res.References,
		SiteName:        res.SiteName,
		LastSync:        &lastSync,
		LastUpdated:     now,
		ChunkProcessing: true,
		MaxDepthScanned: res.MaxDepthScanned,
		Truncated:       res.Truncated,
	}
	if err := cache.PutJSON(ctx, o.store, o.keys.BasicStats(), stats, BasicStatsTTL); err != nil {
		return res, fmt.Errorf("store basic stats: %w", err)
	}

	res.Chunks = Partition(collected.References, o.ChunkSize)
	seed := models.IngestionProgress{
		RunID:           runID,
		TotalChunks:     len(res.Chunks),
		TotalDocuments:  res.References,
		SiteName:        res.SiteName,
		LastSync:        &lastSync,
		MaxDepthScanned: res.MaxDepthScanned,
		Truncated:       res.Truncated,
	}
	if _, err := o.tracker.Initialize(ctx, seed); err != nil {
		return res, err
	}
	o.logger.Info("ingestion planned", "run_id", runID, "chunks", len(res.Chunks), "chunk_size", o.ChunkSize)
	return res, nil
}

// PublishError stores the conservative error placeholder read-side
// consumers see after a failed run.
func (o *Orchestrator) PublishError(ctx context.Context) {
	stats := models.BasicStats{
		SiteName:    defaultSiteName + " (error)",
		LastUpdated: o.now().UTC(),
		Error:       true,
	}
	if err := cache.PutJSON(ctx, o.store, o.keys.BasicStats(), stats, ErrorStatsTTL); err != nil {
		o.logger.Error("store error stats", "error", err)
	}
}

// PublishLoading stores the placeholder shown while a first run is starting.
func (o *Orchestrator) PublishLoading(ctx context.Context) error {
	stats := models.BasicStats{
		SiteName:    defaultSiteName,
		LastUpdated: o.now().UTC(),
		Loading:     true,
	}
	return cache.PutJSON(ctx, o.store, o.keys.BasicStats(), stats, LoadingStatsTTL)
}

// Reset forgets the published aggregates and progress so the next read
// shows a loading state.
func (o *Orchestrator) Reset(ctx context.Context) error {
	for _, key := range []string{o.keys.BasicStats(), o.keys.ExtendedData(), o.keys.Progress(), o.keys.AllChunksCompleted()} {
		if err := o.store.Forget(ctx, key); err != nil {
			return fmt.Errorf("forget %s: %w", key, err)
		}
	}
	return nil
}

// HasStats reports whether BasicStats are currently published.
func (o *Orchestrator) HasStats(ctx context.Context) (bool, error) {
	_, ok, err := o.store.Get(ctx, o.keys.BasicStats())
	return ok, err
}
