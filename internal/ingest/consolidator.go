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

type ConsolidateResult struct {
	Ready    bool                     `json:"ready"`
	Partial  bool                     `json:"partial"`
	Progress models.IngestionProgress `json:"progress"`
	Total    int                      `json:"total_documents"`
	Recent   int                      `json:"recent_documents"`
}

type Consolidator struct {
	store   cache.Store
	keys    cache.Keys
	tracker *Tracker
	logger  *slog.Logger
	now     Clock
}

func NewConsolidator(store cache.Store, keys cache.Keys, tracker *Tracker, logger *slog.Logger) *Consolidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consolidator{store: store, keys: keys, tracker: tracker, logger: logger, now: time.Now}
}

func (c *Consolidator) WithClock(now Clock) *Consolidator {
	if now != nil {
		c.now = now
	}
	return c
}

// Consolidate publishes BasicStats and ExtendedData from the stored chunk
// results once every chunk of the run is done. Until then it returns with
// Ready unset and writes nothing. force consolidates whatever is there.
func (c *Consolidator) Consolidate(ctx context.Context, force bool) (ConsolidateResult, error) {
	progress, ok, err := c.tracker.Load(ctx)
	if err != nil {
		return ConsolidateResult{}, fmt.Errorf("load progress: %w", err)
	}
	if !ok || progress.TotalChunks == 0 {
		c.logger.Info("no ingestion progress, nothing to consolidate")
		metrics.Consolidations.WithLabelValues("no_progress").Inc()
		return ConsolidateResult{}, nil
	}

	slots, err := loadChunks(ctx, c.store, c.keys, progress.RunID, progress.TotalChunks)
	if err != nil {
		return ConsolidateResult{Progress: progress}, err
	}

	if !progress.Done() {
		if terminal := terminalKeys(slots); len(terminal) > progress.CompletedChunks {
			if p, err := c.tracker.Reconcile(ctx, progress.RunID, terminal); err != nil {
				c.logger.Warn("reconcile progress", "error", err)
			} else {
				progress = p
			}
		}
	}
	if !progress.Done() && !force {
		c.logger.Info("chunks still processing, consolidation deferred",
			"completed", progress.CompletedChunks, "total", progress.TotalChunks)
		metrics.Consolidations.WithLabelValues("deferred").Inc()
		return ConsolidateResult{Progress: progress}, nil
	}

	now := c.now().UTC()
	docs, chunks := completedDocuments(slots)
	recent := Recent(docs, now, RecentWindow)

	stats, _, err := cache.GetJSON[models.BasicStats](ctx, c.store, c.keys.BasicStats())
	if err != nil {
		c.logger.Warn("read basic stats before consolidation", "error", err)
	}
	// BasicStats may have expired or been replaced by a placeholder while
	// chunks ran; the run's own figures come from progress.
	stats.DocumentCount = progress.TotalDocuments
	if progress.SiteName != "" {
		stats.SiteName = progress.SiteName
	}
	if stats.SiteName == "" {
		stats.SiteName = defaultSiteName
	}
	if progress.LastSync != nil {
		stats.LastSync = progress.LastSync
	}
	stats.MaxDepthScanned = progress.MaxDepthScanned
	stats.Truncated = progress.Truncated
	stats.Error = false
	stats.LastUpdated = now
	stats.NewDocumentsThisWeek = len(recent)
	stats.Loading = false
	stats.ChunkProcessing = false
	stats.ConsolidationCompleted = true
	stats.LastConsolidation = &now
	if err := cache.PutJSON(ctx, c.store, c.keys.BasicStats(), stats, ConsolidatedTTL); err != nil {
		return ConsolidateResult{Progress: progress}, fmt.Errorf("store basic stats: %w", err)
	}

	extended := models.ExtendedData{
		RecentDocuments:     recent[:min(RecentLimit, len(recent))],
		TotalDocumentsCount: len(docs),
		TotalRecentCount:    len(recent),
		DocumentsSummary:    Summarize(docs),
		ConsolidatedAt:      now,
		ChunksProcessed:     progress.TotalChunks,
	}
	if err := cache.PutJSON(ctx, c.store, c.keys.ExtendedData(), extended, ConsolidatedTTL); err != nil {
		return ConsolidateResult{Progress: progress}, fmt.Errorf("store extended data: %w", err)
	}

	partial := !progress.Done()
	label := "completed"
	if partial {
		label = "forced"
	}
	metrics.Consolidations.WithLabelValues(label).Inc()
	c.logger.Info("consolidation completed", "run_id", progress.RunID, "documents", len(docs),
		"completed_chunks", chunks, "total_chunks", progress.TotalChunks, "recent", len(recent), "partial", partial)
	return ConsolidateResult{Ready: true, Partial: partial, Progress: progress, Total: len(docs), Recent: len(recent)}, nil
}
