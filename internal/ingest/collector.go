package ingest

import (
	"context"
	"log/slog"

	"orgdash/internal/cache"
	"orgdash/internal/models"
)

type CollectResult struct {
	References      []models.DocumentReference
	Truncated       bool
	MaxDepthScanned int
	FailedFolders   int
}

type Collector struct {
	tree   TreeClient
	logger *slog.Logger
}

func NewCollector(tree TreeClient, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{tree: tree, logger: logger}
}

// Collect walks the tree depth first from the root. Folders at maxDepth are
// not entered; that is reported through Truncated. A folder whose listing
// fails is abandoned and the walk goes on with its siblings.
func (c *Collector) Collect(ctx context.Context, maxDepth int) (CollectResult, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	var res CollectResult
	if err := c.walk(ctx, c.tree.RootEndpoint(), 0, maxDepth, &res); err != nil {
		return res, err
	}
	if res.Truncated {
		c.logger.Warn("reference collection truncated at max depth", "max_depth", maxDepth, "references", len(res.References))
	}
	return res, nil
}

func (c *Collector) walk(ctx context.Context, endpoint string, depth, maxDepth int, res *CollectResult) error {
	if depth > res.MaxDepthScanned {
		res.MaxDepthScanned = depth
	}
	next := endpoint
	for next != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := c.tree.ListChildren(ctx, next)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("abandon folder listing", "endpoint", next, "depth", depth, "error", err)
			res.FailedFolders++
			return nil
		}
		for _, item := range page.Items {
			switch {
			case item.IsFolder:
				if depth+1 >= maxDepth {
					res.Truncated = true
					continue
				}
				if err := c.walk(ctx, c.tree.FolderEndpoint(item.ID), depth+1, maxDepth, res); err != nil {
					return err
				}
			case item.IsFile:
				res.References = append(res.References, models.DocumentReference{
					ID:         item.ID,
					Name:       item.Name,
					Size:       item.Size,
					ModifiedAt: item.ModifiedAt,
					ParentID:   item.ParentID,
					Depth:      depth,
				})
			}
		}
		next = page.NextLink
	}
	return nil
}

// Partition splits reference ids into consecutive chunks of size ids,
// numbered from 1.
func Partition(refs []models.DocumentReference, size int) []models.ChunkPlan {
	if size <= 0 {
		size = DefaultChunkSize
	}
	plans := make([]models.ChunkPlan, 0, (len(refs)+size-1)/size)
	for start := 0; start < len(refs); start += size {
		end := min(start+size, len(refs))
		ids := make([]string, 0, end-start)
		for _, r := range refs[start:end] {
			ids = append(ids, r.ID)
		}
		n := len(plans) + 1
		plans = append(plans, models.ChunkPlan{Number: n, Key: cache.ChunkKey(n), IDs: ids})
	}
	return plans
}
