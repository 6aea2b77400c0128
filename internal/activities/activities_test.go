package activities

import (
	"context"
	"errors"
	"testing"
	"time"

	"orgdash/internal/cache"
	"orgdash/internal/ingest"
	"orgdash/internal/models"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

type stubTree struct {
	files []models.DriveItem
}

func (s stubTree) SiteInfo(context.Context) (models.SiteInfo, error) {
	return models.SiteInfo{ID: "site", Name: "Team Docs"}, nil
}
func (s stubTree) RootEndpoint() string            { return "root" }
func (s stubTree) FolderEndpoint(id string) string { return id }
func (s stubTree) ListChildren(context.Context, string) (models.Page, error) {
	return models.Page{Items: s.files}, nil
}
func (s stubTree) GetItemsMetadata(_ context.Context, ids []string) (models.BatchResult, error) {
	out := models.BatchResult{}
	for _, id := range ids {
		out.Documents = append(out.Documents, models.DocumentDetail{ID: id, Name: id + ".pdf", Extension: "pdf", ModifiedAt: time.Now()})
	}
	out.ProcessedCount = len(out.Documents)
	return out, nil
}

func newTestActivities(tree stubTree) (*Activities, cache.Store) {
	store := cache.NewMemory()
	keys := cache.Keys{Prefix: "sharepoint_"}
	tracker := ingest.NewTracker(store, keys, nil)
	proc := ingest.NewProcessor(tree, store, keys, tracker, nil)
	proc.BatchDelay = 0
	return New(
		ingest.NewOrchestrator(tree, store, keys, tracker, nil),
		proc,
		ingest.NewConsolidator(store, keys, tracker, nil),
	), store
}

func TestPlanWithoutReferencesIsNonRetryable(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	a, _ := newTestActivities(stubTree{})
	env.RegisterActivity(a)

	_, err := env.ExecuteActivity(a.PlanIngestionActivity, PlanIngestionInput{RunID: "run-1"})
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	require.True(t, appErr.NonRetryable())
	require.Equal(t, ErrTypeNoReferences, appErr.Type())
}

func TestChunkActivitiesDriveConsolidation(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	tree := stubTree{files: []models.DriveItem{
		{ID: "a", IsFile: true}, {ID: "b", IsFile: true}, {ID: "c", IsFile: true},
	}}
	a, _ := newTestActivities(tree)
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.PlanIngestionActivity, PlanIngestionInput{RunID: "run-1"})
	require.NoError(t, err)
	var plan PlanIngestionOutput
	require.NoError(t, val.Get(&plan))
	require.Equal(t, 3, plan.References)
	require.Len(t, plan.Chunks, 1)

	val, err = env.ExecuteActivity(a.ProcessChunkActivity, ProcessChunkInput{RunID: "run-1", ChunkKey: plan.Chunks[0].Key, IDs: plan.Chunks[0].IDs, MaxAttempts: 3})
	require.NoError(t, err)
	var chunk ProcessChunkOutput
	require.NoError(t, val.Get(&chunk))
	require.Equal(t, 3, chunk.Count)
	require.Equal(t, 100.0, chunk.SuccessRate)

	val, err = env.ExecuteActivity(a.ConsolidateActivity, ConsolidateInput{})
	require.NoError(t, err)
	var cons ConsolidateOutput
	require.NoError(t, val.Get(&cons))
	require.True(t, cons.Ready)
	require.Equal(t, 3, cons.TotalDocuments)
}
