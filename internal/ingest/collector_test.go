package ingest

import (
	"context"
	"testing"

	"orgdash/internal/models"

	"github.com/stretchr/testify/require"
)

func TestCollectWalksPagesAndFolders(t *testing.T) {
	tree := newFakeTree()
	tree.pages["root"] = models.Page{
		Items: []models.DriveItem{
			{ID: "a", Name: "a.pdf", IsFile: true},
			{ID: "f1", Name: "Reports", IsFolder: true},
			{ID: "broken", Name: "Broken", IsFolder: true},
		},
		NextLink: "root?page=2",
	}
	tree.pages["root?page=2"] = models.Page{Items: []models.DriveItem{{ID: "b", Name: "b.docx", IsFile: true}}}
	tree.pages["folder/f1"] = models.Page{Items: []models.DriveItem{
		{ID: "c", Name: "c.xlsx", IsFile: true, ParentID: "f1"},
		{ID: "f2", Name: "Deep", IsFolder: true},
	}}
	tree.pages["folder/f2"] = models.Page{Items: []models.DriveItem{{ID: "d", Name: "d.pdf", IsFile: true}}}
	tree.listErr["folder/broken"] = errRemote

	res, err := NewCollector(tree, nil).Collect(context.Background(), 2)
	require.NoError(t, err)

	ids := make([]string, 0, len(res.References))
	for _, r := range res.References {
		ids = append(ids, r.ID)
	}
	require.Equal(t, []string{"a", "c", "b"}, ids)
	require.Equal(t, 1, res.References[1].Depth)
	require.True(t, res.Truncated)
	require.Equal(t, 1, res.MaxDepthScanned)
	require.Equal(t, 1, res.FailedFolders)
}

func TestCollectFullDepthIsNotTruncated(t *testing.T) {
	tree := newFakeTree()
	tree.pages["root"] = models.Page{Items: []models.DriveItem{{ID: "f1", IsFolder: true}}}
	tree.pages["folder/f1"] = models.Page{Items: []models.DriveItem{{ID: "x", IsFile: true}}}

	res, err := NewCollector(tree, nil).Collect(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, res.References, 1)
	require.False(t, res.Truncated)
}

func TestPartition(t *testing.T) {
	refs := make([]models.DocumentReference, 125)
	for i := range refs {
		refs[i].ID = string(rune('a' + i%26))
	}
	plans := Partition(refs, 50)
	require.Len(t, plans, 3)
	require.Len(t, plans[0].IDs, 50)
	require.Len(t, plans[1].IDs, 50)
	require.Len(t, plans[2].IDs, 25)
	require.Equal(t, "chunk_1", plans[0].Key)
	require.Equal(t, 3, plans[2].Number)

	require.Empty(t, Partition(nil, 50))
}
