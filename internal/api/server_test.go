package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orgdash/internal/app"
	"orgdash/internal/cache"
	"orgdash/internal/ingest"
	"orgdash/internal/models"

	"github.com/stretchr/testify/require"
)

type stubLauncher struct {
	calls int
	err   error
}

func (l *stubLauncher) Start(context.Context) (string, error) {
	l.calls++
	return "run-42", l.err
}

type noTree struct{}

func (noTree) SiteInfo(context.Context) (models.SiteInfo, error)         { return models.SiteInfo{}, nil }
func (noTree) RootEndpoint() string                                      { return "root" }
func (noTree) FolderEndpoint(string) string                              { return "" }
func (noTree) ListChildren(context.Context, string) (models.Page, error) { return models.Page{}, nil }
func (noTree) GetItemsMetadata(context.Context, []string) (models.BatchResult, error) {
	return models.BatchResult{}, nil
}

func newTestServer(t *testing.T, launcher Launcher) (*Server, cache.Store, cache.Keys) {
	t.Helper()
	store := cache.NewMemory()
	keys := cache.Keys{Prefix: "sharepoint_"}
	tracker := ingest.NewTracker(store, keys, nil)
	orch := ingest.NewOrchestrator(noTree{}, store, keys, tracker, nil)
	return NewServer(ingest.NewCatalog(store, keys), orch, launcher, nil, nil), store, keys
}

func seed(t *testing.T, store cache.Store, keys cache.Keys) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, cache.PutJSON(ctx, store, keys.BasicStats(), models.BasicStats{
		DocumentCount: 2, SiteName: "Team Docs", ChunkProcessing: true, LastUpdated: now,
	}, time.Hour))
	require.NoError(t, cache.PutJSON(ctx, store, keys.Progress(), models.IngestionProgress{
		RunID: "run-1", CompletedChunks: 1, TotalChunks: 2, CompletionPercentage: 50,
	}, time.Hour))
	require.NoError(t, cache.PutJSON(ctx, store, keys.Chunk("chunk_1"), models.ChunkResult{
		RunID: "run-1", ChunkKey: "chunk_1", Status: models.ChunkCompleted, Count: 2, RequestedCount: 2, SuccessRate: 100,
		Documents: []models.DocumentDetail{
			{ID: "d1", Name: "Budget.xlsx", Extension: "xlsx", Size: 2048, ModifiedAt: now, FolderPath: "/Finance"},
			{ID: "d2", Name: "Plan.pdf", Extension: "pdf", Size: 10, ModifiedAt: now.Add(-time.Hour), FolderPath: "/Ops"},
		},
	}, time.Hour))
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestStatsEmptyStartsRun(t *testing.T) {
	l := &stubLauncher{}
	s, store, keys := newTestServer(t, l)

	rec := do(t, s.Routes(), http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var out statsSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.True(t, out.Loading)
	require.Equal(t, 1, l.calls)

	stats, ok, err := cache.GetJSON[models.BasicStats](context.Background(), store, keys.BasicStats())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, stats.Loading)
}

func TestStatsReportsProgress(t *testing.T) {
	s, store, keys := newTestServer(t, nil)
	seed(t, store, keys)

	rec := do(t, s.Routes(), http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var out statsSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Equal(t, 2, out.DocumentCount)
	require.True(t, out.Loading)
	require.NotNil(t, out.Progress)
	require.Equal(t, 50.0, out.Progress.Percentage)
}

func TestDetailedStats(t *testing.T) {
	s, store, keys := newTestServer(t, nil)
	seed(t, store, keys)

	rec := do(t, s.Routes(), http.MethodGet, "/stats/detailed")
	require.Equal(t, http.StatusOK, rec.Code)
	var out ingest.DetailedProgress
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Len(t, out.ChunksDetail, 2)
	require.Equal(t, models.ChunkPending, out.ChunksDetail[1].Status)
}

func TestDocumentsEndpoints(t *testing.T) {
	s, store, keys := newTestServer(t, nil)
	seed(t, store, keys)
	h := s.Routes()

	rec := do(t, h, http.MethodGet, "/documents?type=PDF&per_page=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var page ingest.DocumentPage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Equal(t, 1, page.Total)
	require.Equal(t, "d2", page.Documents[0].ID)

	rec = do(t, h, http.MethodGet, "/documents?page=922337203685477580&per_page=20")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/documents?min_size=abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/documents/search?q=b")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/documents/search?q=budget")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Budget.xlsx")

	rec = do(t, h, http.MethodGet, "/documents/d1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/documents/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/documents/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var st ingest.DocumentStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	require.Equal(t, 2, st.Total)
}

func TestRefresh(t *testing.T) {
	l := &stubLauncher{}
	s, store, keys := newTestServer(t, l)
	seed(t, store, keys)
	h := s.Routes()

	rec := do(t, h, http.MethodGet, "/refresh")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, h, http.MethodPost, "/refresh")
	require.Equal(t, http.StatusAccepted, rec.Code)
	_, ok, _ := store.Get(context.Background(), keys.BasicStats())
	require.False(t, ok)

	l.err = app.ErrRunInProgress
	rec = do(t, h, http.MethodPost, "/refresh")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRefreshWithoutLauncher(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := do(t, s.Routes(), http.MethodPost, "/refresh")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
