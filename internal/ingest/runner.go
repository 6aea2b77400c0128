package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"orgdash/internal/models"
)

// DefaultRetrySchedule is the wait before the second and third attempt of a
// chunk.
var DefaultRetrySchedule = []time.Duration{30 * time.Second, 90 * time.Second, 180 * time.Second}

type RunSummary struct {
	Plan          PlanResult        `json:"plan"`
	Completed     int               `json:"completed_chunks"`
	Failed        int               `json:"failed_chunks"`
	Consolidation ConsolidateResult `json:"consolidation"`
}

// Runner executes a whole ingestion in process. Chunks run on a bounded pool
// with a retry schedule and consolidation polls until every chunk is done.
type Runner struct {
	orchestrator *Orchestrator
	processor    *Processor
	consolidator *Consolidator
	logger       *slog.Logger

	MaxConcurrent      int
	MaxAttempts        int
	RetrySchedule      []time.Duration
	ConsolidationDelay time.Duration
	RecheckInterval    time.Duration
	MaxChecks          int
}

func NewRunner(o *Orchestrator, p *Processor, c *Consolidator, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		orchestrator:       o,
		processor:          p,
		consolidator:       c,
		logger:             logger,
		MaxConcurrent:      4,
		MaxAttempts:        DefaultMaxAttempts,
		RetrySchedule:      DefaultRetrySchedule,
		ConsolidationDelay: 30 * time.Second,
		RecheckInterval:    2 * time.Minute,
		MaxChecks:          15,
	}
}

func (r *Runner) Run(ctx context.Context, runID string) (RunSummary, error) {
	var sum RunSummary
	plan, err := r.orchestrator.Plan(ctx, runID)
	sum.Plan = plan
	if err != nil {
		return sum, err
	}

	var completed, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.MaxConcurrent))
	chunksDone := make(chan struct{})
	go func() {
		for _, chunk := range plan.Chunks {
			chunk := chunk
			g.Go(func() error {
				if r.runChunk(gctx, runID, chunk) {
					completed.Add(1)
				} else {
					failed.Add(1)
				}
				return gctx.Err()
			})
		}
		_ = g.Wait()
		close(chunksDone)
	}()

	res, err := r.consolidate(ctx, chunksDone)
	<-chunksDone
	sum.Completed = int(completed.Load())
	sum.Failed = int(failed.Load())
	sum.Consolidation = res
	if err != nil {
		return sum, err
	}
	r.logger.Info("ingestion finished", "run_id", runID, "completed_chunks", sum.Completed,
		"failed_chunks", sum.Failed, "documents", res.Total, "partial", res.Partial)
	return sum, nil
}

func (r *Runner) runChunk(ctx context.Context, runID string, chunk models.ChunkPlan) bool {
	req := ChunkRequest{RunID: runID, ChunkKey: chunk.Key, IDs: chunk.IDs, MaxAttempts: max(1, r.MaxAttempts)}
	op := func() error {
		req.Attempt++
		_, err := r.processor.ProcessChunk(ctx, req)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newSchedule(r.RetrySchedule), uint64(req.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		r.logger.Warn("chunk attempt failed, retrying", "chunk", chunk.Key, "attempt", req.Attempt, "wait", wait, "error", err)
	})
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	if _, herr := r.processor.MarkFailed(ctx, req, err.Error()); herr != nil {
		r.logger.Error("terminal chunk hook failed", "chunk", chunk.Key, "error", herr)
	}
	return false
}

// consolidate waits ConsolidationDelay, then checks every RecheckInterval.
// Once all chunk work has returned, or after MaxChecks, it forces.
func (r *Runner) consolidate(ctx context.Context, chunksDone <-chan struct{}) (ConsolidateResult, error) {
	wait := r.ConsolidationDelay
	finished := false
	for check := 1; ; check++ {
		if !finished {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ConsolidateResult{}, ctx.Err()
			case <-chunksDone:
				finished = true
			case <-t.C:
			}
			t.Stop()
		}
		force := finished || check >= r.MaxChecks
		res, err := r.consolidator.Consolidate(ctx, force)
		if err != nil {
			return res, err
		}
		if res.Ready || finished {
			return res, nil
		}
		if force {
			return res, errors.New("ingest: nothing to consolidate")
		}
		wait = r.RecheckInterval
	}
}

// schedule replays fixed waits, repeating the last one.
type schedule struct {
	waits []time.Duration
	i     int
}

func newSchedule(waits []time.Duration) *schedule {
	if len(waits) == 0 {
		waits = DefaultRetrySchedule
	}
	return &schedule{waits: waits}
}

func (s *schedule) NextBackOff() time.Duration {
	w := s.waits[min(s.i, len(s.waits)-1)]
	s.i++
	return w
}

func (s *schedule) Reset() { s.i = 0 }
