package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"orgdash/internal/cache"
	"orgdash/internal/config"
	"orgdash/internal/models"

	"github.com/stretchr/testify/require"
)

type oneFolderTree struct{}

func (oneFolderTree) SiteInfo(context.Context) (models.SiteInfo, error) {
	return models.SiteInfo{Name: "Team Docs"}, nil
}
func (oneFolderTree) RootEndpoint() string          { return "root" }
func (oneFolderTree) FolderEndpoint(string) string { return "" }
func (oneFolderTree) ListChildren(context.Context, string) (models.Page, error) {
	return models.Page{Items: []models.DriveItem{{ID: "a", IsFile: true}, {ID: "b", IsFile: true}}}, nil
}
func (oneFolderTree) GetItemsMetadata(_ context.Context, ids []string) (models.BatchResult, error) {
	out := models.BatchResult{}
	for _, id := range ids {
		out.Documents = append(out.Documents, models.DocumentDetail{ID: id, Extension: "pdf", ModifiedAt: time.Now()})
	}
	out.ProcessedCount = len(out.Documents)
	return out, nil
}

func newInlineApp() *App {
	cfg := config.Config{
		Execution:              config.ExecutionInline,
		CacheBackend:           config.CacheBackendMemory,
		CachePrefix:            "sharepoint_",
		MaxDepth:               50,
		ChunkSize:              1,
		MicroBatchSize:         10,
		MaxConcurrentChunks:    2,
		ConsolidationDelay:     time.Millisecond,
		ConsolidationRecheck:   time.Millisecond,
		MaxConsolidationChecks: 1 << 20,
	}
	a := &App{Config: cfg, Logger: slog.Default(), Store: cache.NewMemory(), Keys: cache.Keys{Prefix: cfg.CachePrefix}}
	a.wire(oneFolderTree{})
	return a
}

func TestInlineLauncherRun(t *testing.T) {
	a := newInlineApp()
	l, err := a.Launcher(nil)
	require.NoError(t, err)

	res, err := l.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	require.Equal(t, 2, res.TotalChunks)
	require.Equal(t, 2, res.Completed)
	require.Equal(t, 2, res.TotalDocuments)

	ext, ok, err := a.Catalog.ExtendedData(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, ext.TotalDocumentsCount)
}

func TestInlineLauncherRejectsOverlappingRuns(t *testing.T) {
	l := &InlineLauncher{logger: slog.Default()}
	require.True(t, l.acquire())
	_, err := l.Start(context.Background())
	require.ErrorIs(t, err, ErrRunInProgress)
	l.release()
}

func TestLauncherNeedsTemporalClient(t *testing.T) {
	a := newInlineApp()
	a.Config.Execution = config.ExecutionTemporal
	_, err := a.Launcher(nil)
	require.Error(t, err)

	a.Config.Execution = "cron"
	_, err = a.Launcher(nil)
	require.Error(t, err)
}
