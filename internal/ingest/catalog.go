package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"orgdash/internal/cache"
	"orgdash/internal/models"
)

const (
	DefaultPerPage   = 20
	MaxPerPage       = 200
	MinSearchLength  = 2
	SearchLimit      = 50
	detailRecentSize = 5
)

var ErrQueryTooShort = errors.New("ingest: search query needs at least 2 characters")

type DocumentFilter struct {
	Type     string
	DateFrom *time.Time
	DateTo   *time.Time
	MinSize  *int64
	MaxSize  *int64
	Folder   string
	Page     int
	PerPage  int
}

type DocumentPage struct {
	Documents  []models.DocumentDetail `json:"data"`
	Total      int                     `json:"total"`
	Page       int                     `json:"current_page"`
	PerPage    int                     `json:"per_page"`
	TotalPages int                     `json:"last_page"`
}

type ChunkDetail struct {
	ChunkNumber        int                `json:"chunk_number"`
	Status             models.ChunkStatus `json:"status"`
	DocumentsProcessed int                `json:"documents_processed"`
	SuccessRate        float64            `json:"success_rate"`
	ProcessingTime     float64            `json:"processing_time"`
	ProcessedAt        *time.Time         `json:"processed_at,omitempty"`
	ErrorMessage       string             `json:"error_message,omitempty"`
}

type DetailedProgress struct {
	Stats            *models.BasicStats      `json:"basic_stats,omitempty"`
	CompletedChunks  int                     `json:"completed_chunks"`
	TotalChunks      int                     `json:"total_chunks"`
	Percentage       float64                 `json:"percentage"`
	ChunksDetail     []ChunkDetail           `json:"chunks_detail"`
	DocumentsSummary *models.TypeSummary     `json:"documents_summary,omitempty"`
	RecentDocuments  []models.DocumentDetail `json:"recent_documents"`
	ConsolidatedAt   *time.Time              `json:"consolidated_at,omitempty"`
}

// Catalog answers read-side queries from what the pipeline stored. It never
// calls the remote tree.
type Catalog struct {
	store cache.Store
	keys  cache.Keys
}

func NewCatalog(store cache.Store, keys cache.Keys) *Catalog {
	return &Catalog{store: store, keys: keys}
}

func (c *Catalog) BasicStats(ctx context.Context) (models.BasicStats, bool, error) {
	return cache.GetJSON[models.BasicStats](ctx, c.store, c.keys.BasicStats())
}

func (c *Catalog) ExtendedData(ctx context.Context) (models.ExtendedData, bool, error) {
	return cache.GetJSON[models.ExtendedData](ctx, c.store, c.keys.ExtendedData())
}

func (c *Catalog) Progress(ctx context.Context) (models.IngestionProgress, bool, error) {
	return cache.GetJSON[models.IngestionProgress](ctx, c.store, c.keys.Progress())
}

// Documents returns every document of the completed chunks of the current
// run, newest first.
func (c *Catalog) Documents(ctx context.Context) ([]models.DocumentDetail, error) {
	p, ok, err := c.Progress(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	slots, err := loadChunks(ctx, c.store, c.keys, p.RunID, p.TotalChunks)
	if err != nil {
		return nil, err
	}
	docs, _ := completedDocuments(slots)
	sortByModifiedDesc(docs)
	return docs, nil
}

func (c *Catalog) List(ctx context.Context, f DocumentFilter) (DocumentPage, error) {
	docs, err := c.Documents(ctx)
	if err != nil {
		return DocumentPage{}, err
	}
	filtered := make([]models.DocumentDetail, 0, len(docs))
	for _, d := range docs {
		if f.match(d) {
			filtered = append(filtered, d)
		}
	}

	page := max(1, f.Page)
	perPage := f.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	perPage = min(perPage, MaxPerPage)
	out := DocumentPage{
		Documents:  []models.DocumentDetail{},
		Total:      len(filtered),
		Page:       page,
		PerPage:    perPage,
		TotalPages: (len(filtered) + perPage - 1) / perPage,
	}
	// compare pages before multiplying so a huge page cannot overflow
	if page <= out.TotalPages {
		start := (page - 1) * perPage
		out.Documents = filtered[start:min(start+perPage, len(filtered))]
	}
	return out, nil
}

func (f DocumentFilter) match(d models.DocumentDetail) bool {
	if f.Type != "" && !strings.EqualFold(d.Extension, strings.TrimPrefix(f.Type, ".")) {
		return false
	}
	if f.DateFrom != nil && d.ModifiedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && d.ModifiedAt.After(*f.DateTo) {
		return false
	}
	if f.MinSize != nil && d.Size < *f.MinSize {
		return false
	}
	if f.MaxSize != nil && d.Size > *f.MaxSize {
		return false
	}
	if f.Folder != "" && !containsFold(d.FolderPath, f.Folder) {
		return false
	}
	return true
}

// Search matches q against name, folder and last editor.
func (c *Catalog) Search(ctx context.Context, q string) ([]models.DocumentDetail, error) {
	q = strings.TrimSpace(q)
	if len(q) < MinSearchLength {
		return nil, ErrQueryTooShort
	}
	docs, err := c.Documents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.DocumentDetail, 0)
	for _, d := range docs {
		if containsFold(d.Name, q) || containsFold(d.FolderPath, q) || containsFold(d.ModifiedBy, q) {
			out = append(out, d)
			if len(out) == SearchLimit {
				break
			}
		}
	}
	return out, nil
}

func (c *Catalog) Document(ctx context.Context, id string) (models.DocumentDetail, error) {
	docs, err := c.Documents(ctx)
	if err != nil {
		return models.DocumentDetail{}, err
	}
	for _, d := range docs {
		if d.ID == id {
			return d, nil
		}
	}
	return models.DocumentDetail{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
}

func (c *Catalog) Stats(ctx context.Context) (DocumentStats, error) {
	docs, err := c.Documents(ctx)
	if err != nil {
		return DocumentStats{}, err
	}
	return ComputeDocumentStats(docs), nil
}

// Detailed assembles progress with a per-chunk breakdown. Chunks without a
// stored result of the current run are pending.
func (c *Catalog) Detailed(ctx context.Context) (DetailedProgress, error) {
	out := DetailedProgress{ChunksDetail: []ChunkDetail{}, RecentDocuments: []models.DocumentDetail{}}
	if stats, ok, err := c.BasicStats(ctx); err != nil {
		return out, err
	} else if ok {
		out.Stats = &stats
	}

	p, ok, err := c.Progress(ctx)
	if err != nil {
		return out, err
	}
	if ok {
		out.CompletedChunks = p.CompletedChunks
		out.TotalChunks = p.TotalChunks
		out.Percentage = p.CompletionPercentage
		slots, err := loadChunks(ctx, c.store, c.keys, p.RunID, p.TotalChunks)
		if err != nil {
			return out, err
		}
		for _, s := range slots {
			out.ChunksDetail = append(out.ChunksDetail, chunkDetail(s))
		}
	}

	ext, ok, err := c.ExtendedData(ctx)
	if err != nil {
		return out, err
	}
	if ok {
		summary := ext.DocumentsSummary
		consolidated := ext.ConsolidatedAt
		out.DocumentsSummary = &summary
		out.ConsolidatedAt = &consolidated
		out.RecentDocuments = ext.RecentDocuments[:min(detailRecentSize, len(ext.RecentDocuments))]
	}
	return out, nil
}

func chunkDetail(s chunkSlot) ChunkDetail {
	d := ChunkDetail{ChunkNumber: s.Number, Status: models.ChunkPending}
	if s.Result == nil {
		return d
	}
	r := s.Result
	switch r.Status {
	case models.ChunkCompleted:
		d.Status = models.ChunkCompleted
		d.DocumentsProcessed = r.Count
		d.SuccessRate = r.SuccessRate
		d.ProcessingTime = r.ProcessingTimeSeconds
		d.ProcessedAt = r.ProcessedAt
	case models.ChunkFailed:
		d.Status = models.ChunkFailed
		d.ErrorMessage = r.Message
		d.ProcessedAt = r.FailedAt
	}
	return d
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
