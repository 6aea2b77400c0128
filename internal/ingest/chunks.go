package ingest

import (
	"context"
	"fmt"

	"orgdash/internal/cache"
	"orgdash/internal/models"
)

// chunkSlot is the stored state of chunk n, or nothing when the entry is
// missing or belongs to another run.
type chunkSlot struct {
	Number int
	Key    string
	Result *models.ChunkResult
}

func loadChunks(ctx context.Context, store cache.Store, keys cache.Keys, runID string, total int) ([]chunkSlot, error) {
	slots := make([]chunkSlot, 0, total)
	for n := 1; n <= total; n++ {
		key := cache.ChunkKey(n)
		slot := chunkSlot{Number: n, Key: key}
		res, ok, err := cache.GetJSON[models.ChunkResult](ctx, store, keys.Chunk(key))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		if ok && (runID == "" || res.RunID == runID) {
			slot.Result = &res
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func completedDocuments(slots []chunkSlot) ([]models.DocumentDetail, int) {
	var docs []models.DocumentDetail
	chunks := 0
	for _, s := range slots {
		if s.Result == nil || s.Result.Status != models.ChunkCompleted {
			continue
		}
		docs = append(docs, s.Result.Documents...)
		chunks++
	}
	return docs, chunks
}

func terminalKeys(slots []chunkSlot) []string {
	var keys []string
	for _, s := range slots {
		if s.Result != nil && s.Result.Terminal() {
			keys = append(keys, s.Key)
		}
	}
	return keys
}
