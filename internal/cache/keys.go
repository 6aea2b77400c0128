package cache

import "fmt"

// Keys builds the persisted key layout under a shared prefix.
type Keys struct {
	Prefix string
}

func (k Keys) BasicStats() string         { return k.Prefix + "basic_stats" }
func (k Keys) ExtendedData() string       { return k.Prefix + "extended_data" }
func (k Keys) Progress() string           { return k.Prefix + "chunk_progress" }
func (k Keys) AllChunksCompleted() string { return k.Prefix + "all_chunks_completed" }
func (k Keys) ProgressLock() string       { return k.Prefix + "progress_lock" }
func (k Keys) AccessToken() string        { return k.Prefix + "access_token" }

// ChunkKey is the logical name of the n-th chunk, counted from 1.
func ChunkKey(n int) string { return fmt.Sprintf("chunk_%d", n) }

func (k Keys) Chunk(chunkKey string) string { return k.Prefix + chunkKey }

func (k Keys) ChunkDone(runID, chunkKey string) string {
	return k.Prefix + "chunk_done_" + runID + "_" + chunkKey
}
