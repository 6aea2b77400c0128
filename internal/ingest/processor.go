package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"orgdash/internal/cache"
	"orgdash/internal/metrics"
	"orgdash/internal/models"
)

type ChunkRequest struct {
	RunID       string   `json:"run_id"`
	ChunkKey    string   `json:"chunk_key"`
	IDs         []string `json:"ids"`
	Attempt     int      `json:"attempt"`
	MaxAttempts int      `json:"max_attempts"`
}

type Processor struct {
	tree    TreeClient
	store   cache.Store
	keys    cache.Keys
	tracker *Tracker
	logger  *slog.Logger
	now     Clock
	sleep   SleepFunc

	BatchSize  int
	BatchDelay time.Duration
}

func NewProcessor(tree TreeClient, store cache.Store, keys cache.Keys, tracker *Tracker, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		tree:       tree,
		store:      store,
		keys:       keys,
		tracker:    tracker,
		logger:     logger,
		now:        time.Now,
		sleep:      Sleep,
		BatchSize:  DefaultBatchSize,
		BatchDelay: DefaultBatchDelay,
	}
}

func (p *Processor) WithClock(now Clock, sleep SleepFunc) *Processor {
	if now != nil {
		p.now = now
	}
	if sleep != nil {
		p.sleep = sleep
	}
	return p
}

// ProcessChunk fetches the details of every id in req in micro-batches and
// stores the chunk result. A chunk without a single resolved document is a
// failure. Failed attempts are stored too, and the error is returned so the
// caller can retry.
func (p *Processor) ProcessChunk(ctx context.Context, req ChunkRequest) (models.ChunkResult, error) {
	start := p.now()
	log := p.logger.With("run_id", req.RunID, "chunk", req.ChunkKey)
	log.Info("processing chunk", "documents", len(req.IDs), "attempt", req.Attempt)

	docs, batches, err := p.fetch(ctx, req, log)
	if err == nil && len(docs) == 0 {
		err = fmt.Errorf("%w: %s", ErrChunkEmpty, req.ChunkKey)
	}
	if err != nil {
		res := p.failure(req, err, false)
		if perr := cache.PutJSON(context.WithoutCancel(ctx), p.store, p.keys.Chunk(req.ChunkKey), res, ChunkTTL); perr != nil {
			log.Error("store failed chunk", "error", perr)
		}
		metrics.Chunks.WithLabelValues(string(models.ChunkFailed)).Inc()
		log.Error("chunk failed", "error", err, "attempt", req.Attempt, "max_attempts", req.MaxAttempts)
		return res, err
	}

	processedAt := p.now().UTC()
	res := models.ChunkResult{
		RunID:                 req.RunID,
		ChunkKey:              req.ChunkKey,
		Status:                models.ChunkCompleted,
		Documents:             docs,
		Count:                 len(docs),
		RequestedCount:        len(req.IDs),
		SuccessRate:           percent(len(docs), len(req.IDs), 1),
		ProcessingTimeSeconds: round(p.now().Sub(start).Seconds(), 2),
		MicroBatchesProcessed: batches,
		ProcessedAt:           &processedAt,
		Attempt:               req.Attempt,
		MaxAttempts:           req.MaxAttempts,
	}
	if err := cache.PutJSON(ctx, p.store, p.keys.Chunk(req.ChunkKey), res, ChunkTTL); err != nil {
		return res, fmt.Errorf("store chunk %s: %w", req.ChunkKey, err)
	}
	metrics.Chunks.WithLabelValues(string(models.ChunkCompleted)).Inc()
	metrics.DocumentsFetched.Add(float64(len(docs)))
	log.Info("chunk processed", "documents", res.Count, "requested", res.RequestedCount,
		"success_rate", res.SuccessRate, "seconds", res.ProcessingTimeSeconds, "micro_batches", batches)

	p.recordDone(ctx, req, log)
	return res, nil
}

// MarkFailed is the terminal hook for a chunk whose attempts are exhausted.
// The chunk still counts towards completion.
func (p *Processor) MarkFailed(ctx context.Context, req ChunkRequest, cause string) (models.ChunkResult, error) {
	log := p.logger.With("run_id", req.RunID, "chunk", req.ChunkKey)
	res := p.failure(req, errors.New(cause), true)
	if err := cache.PutJSON(ctx, p.store, p.keys.Chunk(req.ChunkKey), res, ChunkTTL); err != nil {
		return res, fmt.Errorf("store failed chunk %s: %w", req.ChunkKey, err)
	}
	metrics.Chunks.WithLabelValues("final_failure").Inc()
	log.Error("chunk failed permanently", "documents", len(req.IDs), "attempts", req.MaxAttempts, "error", cause)
	p.recordDone(ctx, req, log)
	return res, nil
}

func (p *Processor) fetch(ctx context.Context, req ChunkRequest, log *slog.Logger) ([]models.DocumentDetail, int, error) {
	size := p.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	total := (len(req.IDs) + size - 1) / size
	var docs []models.DocumentDetail
	batches := 0
	for start := 0; start < len(req.IDs); start += size {
		if batches > 0 {
			if err := p.sleep(ctx, p.BatchDelay); err != nil {
				return docs, batches, err
			}
		}
		end := min(start+size, len(req.IDs))
		batches++
		log.Debug("processing micro-batch", "batch", batches, "of", total)
		out, err := p.tree.GetItemsMetadata(ctx, req.IDs[start:end])
		if err != nil {
			return docs, batches, fmt.Errorf("fetch micro-batch %d: %w", batches, err)
		}
		docs = append(docs, out.Documents...)
	}
	return docs, batches, nil
}

func (p *Processor) failure(req ChunkRequest, err error, final bool) models.ChunkResult {
	failedAt := p.now().UTC()
	return models.ChunkResult{
		RunID:          req.RunID,
		ChunkKey:       req.ChunkKey,
		Status:         models.ChunkFailed,
		RequestedCount: len(req.IDs),
		Message:        err.Error(),
		Attempt:        req.Attempt,
		MaxAttempts:    req.MaxAttempts,
		FinalFailure:   final,
		FailedAt:       &failedAt,
	}
}

func (p *Processor) recordDone(ctx context.Context, req ChunkRequest, log *slog.Logger) {
	if _, err := p.tracker.RecordChunkDone(ctx, req.RunID, req.ChunkKey); err != nil {
		log.Warn("progress not updated", "error", err)
	}
}
