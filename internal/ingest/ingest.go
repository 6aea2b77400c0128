// Package ingest mirrors a remote document tree into the cache: it collects
// references, fetches their details in chunks, tracks progress and
// consolidates the read-side aggregates.
package ingest

import (
	"context"
	"math"
	"time"

	"orgdash/internal/models"
)

// TreeClient is the remote document tree as seen by the pipeline.
type TreeClient interface {
	SiteInfo(ctx context.Context) (models.SiteInfo, error)
	RootEndpoint() string
	FolderEndpoint(folderID string) string
	ListChildren(ctx context.Context, endpoint string) (models.Page, error)
	GetItemsMetadata(ctx context.Context, ids []string) (models.BatchResult, error)
}

const (
	BasicStatsTTL      = 20 * time.Minute
	ConsolidatedTTL    = 30 * time.Minute
	ErrorStatsTTL      = 10 * time.Minute
	LoadingStatsTTL    = 10 * time.Minute
	ProgressTTL        = time.Hour
	ChunkTTL           = 2 * time.Hour
	AllChunksFlagTTL   = 30 * time.Minute
	RecentWindow       = 7 * 24 * time.Hour
	RecentLimit        = 20
	DefaultChunkSize   = 50
	DefaultMaxDepth    = 50
	DefaultBatchSize   = 10
	DefaultBatchDelay  = 500 * time.Millisecond
	DefaultMaxAttempts = 3
)

type (
	Clock     func() time.Time
	SleepFunc func(ctx context.Context, d time.Duration) error
)

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func percent(part, whole int, places int) float64 {
	if whole <= 0 {
		return 0
	}
	return round(float64(part)/float64(whole)*100, places)
}
