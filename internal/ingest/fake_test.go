package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"orgdash/internal/cache"
	"orgdash/internal/models"
)

var testNow = time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)

var errRemote = errors.New("remote unavailable")

type fakeTree struct {
	mu sync.Mutex

	site      models.SiteInfo
	siteErr   error
	pages     map[string]models.Page
	listErr   map[string]error
	details   map[string]models.DocumentDetail
	batchErr  error
	requested int
}

func newFakeTree() *fakeTree {
	return &fakeTree{
		site:    models.SiteInfo{ID: "site", Name: "Team Docs", LastModified: testNow.Add(-time.Hour)},
		pages:   map[string]models.Page{},
		listErr: map[string]error{},
		details: map[string]models.DocumentDetail{},
	}
}

func (f *fakeTree) SiteInfo(context.Context) (models.SiteInfo, error) { return f.site, f.siteErr }
func (f *fakeTree) RootEndpoint() string                              { return "root" }
func (f *fakeTree) FolderEndpoint(id string) string                   { return "folder/" + id }

func (f *fakeTree) ListChildren(_ context.Context, endpoint string) (models.Page, error) {
	if err := f.listErr[endpoint]; err != nil {
		return models.Page{}, err
	}
	return f.pages[endpoint], nil
}

func (f *fakeTree) GetItemsMetadata(_ context.Context, ids []string) (models.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested += len(ids)
	if f.batchErr != nil {
		return models.BatchResult{}, f.batchErr
	}
	out := models.BatchResult{}
	for _, id := range ids {
		if d, ok := f.details[id]; ok {
			out.Documents = append(out.Documents, d)
		}
	}
	out.ProcessedCount = len(out.Documents)
	return out, nil
}

// addFiles puts n files directly under the root and makes all of them
// resolvable.
func (f *fakeTree) addFiles(n int) []string {
	page := models.Page{}
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("doc-%03d", i)
		ids = append(ids, id)
		page.Items = append(page.Items, models.DriveItem{ID: id, Name: id + ".pdf", IsFile: true, ModifiedAt: testNow})
		f.details[id] = detail(id, "pdf", testNow.Add(-time.Duration(i)*time.Hour))
	}
	f.pages["root"] = page
	return ids
}

func detail(id, ext string, modified time.Time) models.DocumentDetail {
	return models.DocumentDetail{ID: id, Name: id + "." + ext, Extension: ext, ModifiedAt: modified, Size: 1024, FolderPath: "/Shared", ModifiedBy: "Ana"}
}

type harness struct {
	store   *cache.Memory
	keys    cache.Keys
	tree    *fakeTree
	tracker *Tracker
	proc    *Processor
	cons    *Consolidator
	orch    *Orchestrator
	sleeps  []time.Duration
	sleepMu sync.Mutex
}

func newHarness() *harness {
	h := &harness{
		store: cache.NewMemoryWithClock(func() time.Time { return testNow }),
		keys:  cache.Keys{Prefix: "sharepoint_"},
		tree:  newFakeTree(),
	}
	clock := func() time.Time { return testNow }
	sleep := func(_ context.Context, d time.Duration) error {
		h.sleepMu.Lock()
		h.sleeps = append(h.sleeps, d)
		h.sleepMu.Unlock()
		return nil
	}
	h.tracker = NewTracker(h.store, h.keys, nil).WithClock(clock, sleep)
	h.proc = NewProcessor(h.tree, h.store, h.keys, h.tracker, nil).WithClock(clock, sleep)
	h.cons = NewConsolidator(h.store, h.keys, h.tracker, nil).WithClock(clock)
	h.orch = NewOrchestrator(h.tree, h.store, h.keys, h.tracker, nil).WithClock(clock)
	return h
}

func (h *harness) chunk(ctx context.Context, key string) (models.ChunkResult, bool) {
	res, ok, _ := cache.GetJSON[models.ChunkResult](ctx, h.store, h.keys.Chunk(key))
	return res, ok
}

func (h *harness) progress(ctx context.Context) models.IngestionProgress {
	p, _, _ := h.tracker.Load(ctx)
	return p
}

// storeChunk writes a completed chunk result of runID directly.
func (h *harness) storeChunk(ctx context.Context, runID string, n int, docs ...models.DocumentDetail) {
	res := models.ChunkResult{RunID: runID, ChunkKey: cache.ChunkKey(n), Status: models.ChunkCompleted, Documents: docs, Count: len(docs), RequestedCount: len(docs), SuccessRate: 100}
	_ = cache.PutJSON(ctx, h.store, h.keys.Chunk(cache.ChunkKey(n)), res, ChunkTTL)
}

func runProgress(runID string, chunks, docs int) models.IngestionProgress {
	return models.IngestionProgress{RunID: runID, TotalChunks: chunks, TotalDocuments: docs, SiteName: "Team Docs"}
}
