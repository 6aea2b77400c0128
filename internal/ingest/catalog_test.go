package ingest

import (
	"context"
	"math"
	"testing"
	"time"

	"orgdash/internal/models"

	"github.com/stretchr/testify/require"
)

func seedCatalog(t *testing.T) (*harness, *Catalog) {
	t.Helper()
	h := newHarness()
	ctx := context.Background()
	_, err := h.tracker.Initialize(ctx, runProgress("run-1", 3, 5))
	require.NoError(t, err)

	big := detail("budget", "xlsx", testNow.Add(-2*24*time.Hour))
	big.Size = 20 << 20
	big.FolderPath = "/Finance/2025"
	h.storeChunk(ctx, "run-1", 1, detail("alpha", "pdf", testNow.Add(-time.Hour)), big)
	h.storeChunk(ctx, "run-1", 2, detail("beta", "PDF", testNow.Add(-20*24*time.Hour)), detail("gamma", "docx", testNow.Add(-3*time.Hour)))
	_, err = h.proc.MarkFailed(ctx, ChunkRequest{RunID: "run-1", ChunkKey: "chunk_3", IDs: []string{"z"}, Attempt: 3, MaxAttempts: 3}, "boom")
	require.NoError(t, err)
	return h, NewCatalog(h.store, h.keys)
}

func TestCatalogListFiltersAndPages(t *testing.T) {
	_, c := seedCatalog(t)
	ctx := context.Background()

	all, err := c.List(ctx, DocumentFilter{})
	require.NoError(t, err)
	require.Equal(t, 4, all.Total)
	require.Equal(t, "alpha", all.Documents[0].ID)

	pdf, err := c.List(ctx, DocumentFilter{Type: "pdf"})
	require.NoError(t, err)
	require.Equal(t, 2, pdf.Total)

	from := testNow.Add(-7 * 24 * time.Hour)
	minSize := int64(1 << 20)
	recentBig, err := c.List(ctx, DocumentFilter{DateFrom: &from, MinSize: &minSize})
	require.NoError(t, err)
	require.Equal(t, 1, recentBig.Total)
	require.Equal(t, "budget", recentBig.Documents[0].ID)

	folder, err := c.List(ctx, DocumentFilter{Folder: "finance"})
	require.NoError(t, err)
	require.Equal(t, 1, folder.Total)

	paged, err := c.List(ctx, DocumentFilter{Page: 2, PerPage: 3})
	require.NoError(t, err)
	require.Len(t, paged.Documents, 1)
	require.Equal(t, 2, paged.TotalPages)

	beyond, err := c.List(ctx, DocumentFilter{Page: 9})
	require.NoError(t, err)
	require.Empty(t, beyond.Documents)
}

func TestCatalogListHugePage(t *testing.T) {
	_, c := seedCatalog(t)
	for _, page := range []int{math.MaxInt64 / 10, math.MaxInt64} {
		out, err := c.List(context.Background(), DocumentFilter{Page: page, PerPage: 20})
		require.NoError(t, err)
		require.Empty(t, out.Documents)
		require.Equal(t, 4, out.Total)
	}
}

func TestCatalogSearchAndLookup(t *testing.T) {
	_, c := seedCatalog(t)
	ctx := context.Background()

	_, err := c.Search(ctx, "a")
	require.ErrorIs(t, err, ErrQueryTooShort)

	found, err := c.Search(ctx, "BUDG")
	require.NoError(t, err)
	require.Len(t, found, 1)

	byEditor, err := c.Search(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, byEditor, 4)

	doc, err := c.Document(ctx, "gamma")
	require.NoError(t, err)
	require.Equal(t, "docx", doc.Extension)

	_, err = c.Document(ctx, "missing")
	require.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestCatalogDetailed(t *testing.T) {
	_, c := seedCatalog(t)
	d, err := c.Detailed(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, d.TotalChunks)
	require.Equal(t, 1, d.CompletedChunks)
	require.Len(t, d.ChunksDetail, 3)
	require.Equal(t, models.ChunkCompleted, d.ChunksDetail[0].Status)
	require.Equal(t, 2, d.ChunksDetail[0].DocumentsProcessed)
	require.Equal(t, models.ChunkFailed, d.ChunksDetail[2].Status)
	require.Equal(t, "boom", d.ChunksDetail[2].ErrorMessage)
	require.Nil(t, d.DocumentsSummary)
}

func TestCatalogStats(t *testing.T) {
	_, c := seedCatalog(t)
	st, err := c.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, st.Total)
	require.Equal(t, 2, st.ByExtension["pdf"])
	require.Equal(t, 1, st.BySizeRange[SizeLarge])
	require.Equal(t, "budget", st.Largest[0].ID)
	require.Equal(t, "alpha", st.Recent[0].ID)
}
