package ingest

import (
	"context"
	"errors"
	"testing"

	"orgdash/internal/models"

	"github.com/stretchr/testify/require"
)

func TestProcessChunkPartialSuccess(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	ids := h.tree.addFiles(10)
	delete(h.tree.details, ids[3])
	delete(h.tree.details, ids[7])
	h.proc.BatchSize = 4
	_, err := h.tracker.Initialize(ctx, runProgress("run-1", 1, 10))
	require.NoError(t, err)

	res, err := h.proc.ProcessChunk(ctx, ChunkRequest{RunID: "run-1", ChunkKey: "chunk_1", IDs: ids, Attempt: 1, MaxAttempts: 3})
	require.NoError(t, err)
	require.Equal(t, 8, res.Count)
	require.Equal(t, 10, res.RequestedCount)
	require.Equal(t, 80.0, res.SuccessRate)
	require.Equal(t, 3, res.MicroBatchesProcessed)
	require.Len(t, h.sleeps, 2)
	require.Equal(t, DefaultBatchDelay, h.sleeps[0])

	stored, ok := h.chunk(ctx, "chunk_1")
	require.True(t, ok)
	require.Equal(t, models.ChunkCompleted, stored.Status)
	require.Len(t, stored.Documents, 8)

	p := h.progress(ctx)
	require.Equal(t, 1, p.CompletedChunks)
	require.Equal(t, 100.0, p.CompletionPercentage)
	_, flagged, _ := h.store.Get(ctx, h.keys.AllChunksCompleted())
	require.True(t, flagged)
}

func TestProcessChunkFullSuccessRate(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	ids := h.tree.addFiles(5)
	res, err := h.proc.ProcessChunk(ctx, ChunkRequest{RunID: "run-1", ChunkKey: "chunk_1", IDs: ids, Attempt: 1, MaxAttempts: 3})
	require.NoError(t, err)
	require.Equal(t, 100.0, res.SuccessRate)
}

func TestProcessChunkEmptyIsFailure(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.tracker.Initialize(ctx, runProgress("run-1", 2, 3))
	require.NoError(t, err)

	_, err = h.proc.ProcessChunk(ctx, ChunkRequest{RunID: "run-1", ChunkKey: "chunk_2", IDs: []string{"x", "y", "z"}, Attempt: 2, MaxAttempts: 3})
	require.ErrorIs(t, err, ErrChunkEmpty)

	stored, ok := h.chunk(ctx, "chunk_2")
	require.True(t, ok)
	require.Equal(t, models.ChunkFailed, stored.Status)
	require.Equal(t, 2, stored.Attempt)
	require.Equal(t, 3, stored.MaxAttempts)
	require.False(t, stored.FinalFailure)
	require.Equal(t, 0, h.progress(ctx).CompletedChunks)
}

func TestProcessChunkBatchErrorFailsChunk(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	ids := h.tree.addFiles(3)
	h.tree.batchErr = errRemote

	_, err := h.proc.ProcessChunk(ctx, ChunkRequest{RunID: "run-1", ChunkKey: "chunk_1", IDs: ids, Attempt: 1, MaxAttempts: 3})
	require.True(t, errors.Is(err, errRemote))
	stored, _ := h.chunk(ctx, "chunk_1")
	require.Contains(t, stored.Message, "remote unavailable")
}

func TestMarkFailedCountsOnce(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.tracker.Initialize(ctx, runProgress("run-1", 3, 120))
	require.NoError(t, err)

	req := ChunkRequest{RunID: "run-1", ChunkKey: "chunk_3", IDs: []string{"a"}, Attempt: 3, MaxAttempts: 3}
	res, err := h.proc.MarkFailed(ctx, req, "chunk produced no documents")
	require.NoError(t, err)
	require.True(t, res.FinalFailure)
	require.True(t, res.Terminal())

	_, err = h.proc.MarkFailed(ctx, req, "again")
	require.NoError(t, err)
	require.Equal(t, 1, h.progress(ctx).CompletedChunks)
}
