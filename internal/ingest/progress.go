package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"orgdash/internal/cache"
	"orgdash/internal/metrics"
	"orgdash/internal/models"

	"github.com/google/uuid"
)

const (
	lockTTL           = 30 * time.Second
	lockRetries       = 20
	lockRetryInterval = 500 * time.Millisecond
	doneMarkerTTL     = ChunkTTL
)

// Tracker owns the global progress record. Every mutation runs under the
// progress lock.
type Tracker struct {
	store  cache.Store
	keys   cache.Keys
	logger *slog.Logger
	now    Clock
	sleep  SleepFunc

	LockRetries       int
	LockRetryInterval time.Duration
}

func NewTracker(store cache.Store, keys cache.Keys, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:             store,
		keys:              keys,
		logger:            logger,
		now:               time.Now,
		sleep:             Sleep,
		LockRetries:       lockRetries,
		LockRetryInterval: lockRetryInterval,
	}
}

func (t *Tracker) WithClock(now Clock, sleep SleepFunc) *Tracker {
	if now != nil {
		t.now = now
	}
	if sleep != nil {
		t.sleep = sleep
	}
	return t
}

// Initialize resets progress for a new run. seed carries the run id, the
// totals and the site metadata consolidation publishes later.
func (t *Tracker) Initialize(ctx context.Context, seed models.IngestionProgress) (models.IngestionProgress, error) {
	p := seed
	p.CompletedChunks = 0
	p.CompletionPercentage = 0
	p.LastUpdate = t.now().UTC()
	err := t.withLock(ctx, func(ctx context.Context) error {
		if err := t.store.Forget(ctx, t.keys.AllChunksCompleted()); err != nil {
			return err
		}
		return cache.PutJSON(ctx, t.store, t.keys.Progress(), p, ProgressTTL)
	})
	if err != nil {
		return p, fmt.Errorf("initialize progress: %w", err)
	}
	return p, nil
}

func (t *Tracker) Load(ctx context.Context) (models.IngestionProgress, bool, error) {
	return cache.GetJSON[models.IngestionProgress](ctx, t.store, t.keys.Progress())
}

// RecordChunkDone counts chunkKey as finished for runID. The counter is the
// number of done markers of the run, so repeated calls never double count
// and a call after a dropped update catches up.
func (t *Tracker) RecordChunkDone(ctx context.Context, runID, chunkKey string) (models.IngestionProgress, error) {
	first, err := t.claim(ctx, runID, chunkKey)
	if err != nil {
		return models.IngestionProgress{}, err
	}
	if !first {
		t.logger.Debug("chunk already marked done", "run_id", runID, "chunk", chunkKey)
	}
	out, err := t.recount(ctx, runID)
	if err != nil {
		return out, fmt.Errorf("record chunk %s: %w", chunkKey, err)
	}
	t.logger.Info("progress updated", "run_id", runID, "chunk", chunkKey,
		"completed", out.CompletedChunks, "total", out.TotalChunks, "percentage", out.CompletionPercentage)
	return out, nil
}

// Reconcile marks the given chunks of runID done and recounts. The
// consolidator calls it with the chunks whose terminal result is stored,
// which covers updates dropped on a lock timeout.
func (t *Tracker) Reconcile(ctx context.Context, runID string, chunkKeys []string) (models.IngestionProgress, error) {
	for _, key := range chunkKeys {
		if _, err := t.claim(ctx, runID, key); err != nil {
			return models.IngestionProgress{}, err
		}
	}
	out, err := t.recount(ctx, runID)
	if err != nil {
		return out, fmt.Errorf("reconcile progress: %w", err)
	}
	return out, nil
}

func (t *Tracker) claim(ctx context.Context, runID, chunkKey string) (bool, error) {
	first, err := t.store.AddIfAbsent(ctx, t.keys.ChunkDone(runID, chunkKey), []byte(`true`), doneMarkerTTL)
	if err != nil {
		return false, fmt.Errorf("mark chunk %s done: %w", chunkKey, err)
	}
	return first, nil
}

// recount sets completedChunks to the number of done markers of runID.
func (t *Tracker) recount(ctx context.Context, runID string) (models.IngestionProgress, error) {
	var out models.IngestionProgress
	err := t.withLock(ctx, func(ctx context.Context) error {
		p, ok, err := t.Load(ctx)
		if err != nil {
			return err
		}
		out = p
		if !ok {
			return nil
		}
		if p.RunID != runID {
			t.logger.Warn("ignore completion from stale run", "run_id", runID, "current_run_id", p.RunID)
			return nil
		}
		done, err := t.countDone(ctx, runID, p.TotalChunks)
		if err != nil {
			return err
		}
		if done <= p.CompletedChunks {
			return nil
		}
		out, err = t.save(ctx, p, done)
		return err
	})
	return out, err
}

func (t *Tracker) countDone(ctx context.Context, runID string, total int) (int, error) {
	n := 0
	for i := 1; i <= total; i++ {
		_, ok, err := t.store.Get(ctx, t.keys.ChunkDone(runID, cache.ChunkKey(i)))
		if err != nil {
			return 0, fmt.Errorf("read done marker: %w", err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (t *Tracker) save(ctx context.Context, p models.IngestionProgress, completed int) (models.IngestionProgress, error) {
	if completed > p.TotalChunks {
		completed = p.TotalChunks
	}
	if completed < p.CompletedChunks {
		completed = p.CompletedChunks
	}
	p.CompletedChunks = completed
	p.CompletionPercentage = percent(p.CompletedChunks, p.TotalChunks, 1)
	p.LastUpdate = t.now().UTC()
	if err := cache.PutJSON(ctx, t.store, t.keys.Progress(), p, ProgressTTL); err != nil {
		return p, err
	}
	if p.Done() {
		if err := t.store.Put(ctx, t.keys.AllChunksCompleted(), []byte(`true`), AllChunksFlagTTL); err != nil {
			return p, err
		}
		t.logger.Info("all chunks completed", "run_id", p.RunID, "total", p.TotalChunks)
	}
	return p, nil
}

// withLock runs fn while holding the progress lock. The lock value is a
// token unique to this acquisition and release only removes a matching lock.
func (t *Tracker) withLock(ctx context.Context, fn func(ctx context.Context) error) error {
	token := []byte(uuid.NewString())
	for i := 0; i < t.LockRetries; i++ {
		ok, err := t.store.AddIfAbsent(ctx, t.keys.ProgressLock(), token, lockTTL)
		if err != nil {
			return fmt.Errorf("acquire progress lock: %w", err)
		}
		if ok {
			defer t.unlock(context.WithoutCancel(ctx), token)
			return fn(ctx)
		}
		if err := t.sleep(ctx, t.LockRetryInterval); err != nil {
			return err
		}
	}
	metrics.ProgressLockTimeouts.Inc()
	t.logger.Warn("progress lock not acquired", "attempts", t.LockRetries)
	return ErrLockTimeout
}

func (t *Tracker) unlock(ctx context.Context, token []byte) {
	released, err := t.store.ForgetIfValue(ctx, t.keys.ProgressLock(), token)
	if err != nil {
		t.logger.Warn("release progress lock", "error", err)
		return
	}
	if !released {
		t.logger.Warn("progress lock expired before release", "ttl", lockTTL)
	}
}
