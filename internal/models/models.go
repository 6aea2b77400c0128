package models

import "time"

type SiteInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"site_name"`
	LastModified time.Time `json:"last_modified"`
}

// DriveItem is one child returned by a folder listing.
type DriveItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified"`
	ParentID   string    `json:"parent_id,omitempty"`
	IsFolder   bool      `json:"is_folder"`
	IsFile     bool      `json:"is_file"`
}

type Page struct {
	Items    []DriveItem `json:"items"`
	NextLink string      `json:"next_link,omitempty"`
}

type DocumentReference struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified"`
	ParentID   string    `json:"parent_id,omitempty"`
	Depth      int       `json:"depth"`
}

type DocumentDetail struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modified"`
	ParentID    string    `json:"parent_id,omitempty"`
	FolderPath  string    `json:"folder_path,omitempty"`
	MimeType    string    `json:"type"`
	Extension   string    `json:"extension"`
	CreatedAt   time.Time `json:"created"`
	URL         string    `json:"url"`
	DownloadURL string    `json:"download_url,omitempty"`
	ModifiedBy  string    `json:"modified_by"`
	CreatedBy   string    `json:"created_by"`
}

type BatchResult struct {
	Documents      []DocumentDetail `json:"documents"`
	ProcessedCount int              `json:"processed_count"`
}

type ChunkStatus string

const (
	ChunkPending   ChunkStatus = "pending"
	ChunkInFlight  ChunkStatus = "in_flight"
	ChunkCompleted ChunkStatus = "completed"
	ChunkFailed    ChunkStatus = "failed"
)

// ChunkResult is the persisted state of one chunk attempt. Each attempt
// overwrites the previous one.
type ChunkResult struct {
	RunID                 string           `json:"run_id"`
	ChunkKey              string           `json:"chunk_key"`
	Status                ChunkStatus      `json:"status"`
	Documents             []DocumentDetail `json:"documents,omitempty"`
	Count                 int              `json:"count"`
	RequestedCount        int              `json:"requested_count"`
	SuccessRate           float64          `json:"success_rate"`
	ProcessingTimeSeconds float64          `json:"processing_time_seconds"`
	MicroBatchesProcessed int              `json:"micro_batches_processed,omitempty"`
	ProcessedAt           *time.Time       `json:"processed_at,omitempty"`
	Message               string           `json:"message,omitempty"`
	Attempt               int              `json:"attempt,omitempty"`
	MaxAttempts           int              `json:"max_attempts,omitempty"`
	FinalFailure          bool             `json:"final_failure,omitempty"`
	FailedAt              *time.Time       `json:"failed_at,omitempty"`
}

// Terminal reports whether the chunk will not be attempted again in its run.
func (c ChunkResult) Terminal() bool {
	return c.Status == ChunkCompleted || (c.Status == ChunkFailed && c.FinalFailure)
}

type IngestionProgress struct {
	RunID                string    `json:"run_id"`
	CompletedChunks      int       `json:"completed_chunks"`
	TotalChunks          int       `json:"total_chunks"`
	TotalDocuments       int       `json:"total_documents"`
	LastUpdate           time.Time `json:"last_update"`
	CompletionPercentage float64   `json:"completion_percentage"`

	// Site metadata of the run, kept here because it outlives BasicStats.
	SiteName        string     `json:"site_name,omitempty"`
	LastSync        *time.Time `json:"last_sync,omitempty"`
	MaxDepthScanned int        `json:"max_depth_scanned,omitempty"`
	Truncated       bool       `json:"truncated,omitempty"`
}

func (p IngestionProgress) Done() bool {
	return p.TotalChunks > 0 && p.CompletedChunks >= p.TotalChunks
}

type BasicStats struct {
	DocumentCount          int        `json:"document_count"`
	NewDocumentsThisWeek   int        `json:"new_documents_this_week"`
	SiteName               string     `json:"site_name"`
	LastSync               *time.Time `json:"last_sync,omitempty"`
	LastUpdated            time.Time  `json:"last_updated"`
	Loading                bool       `json:"loading"`
	ChunkProcessing        bool       `json:"chunk_processing"`
	ConsolidationCompleted bool       `json:"consolidation_completed"`
	LastConsolidation      *time.Time `json:"last_consolidation,omitempty"`
	MaxDepthScanned        int        `json:"max_depth_scanned"`
	Truncated              bool       `json:"truncated,omitempty"`
	Error                  bool       `json:"error,omitempty"`
}

type TypeSummary struct {
	PDF        int `json:"pdf_count"`
	Word       int `json:"word_count"`
	Excel      int `json:"excel_count"`
	PowerPoint int `json:"powerpoint_count"`
	Other      int `json:"other_count"`
}

type ExtendedData struct {
	RecentDocuments     []DocumentDetail `json:"recent_documents"`
	TotalDocumentsCount int              `json:"total_documents_count"`
	TotalRecentCount    int              `json:"total_recent_count"`
	DocumentsSummary    TypeSummary      `json:"documents_summary"`
	ConsolidatedAt      time.Time        `json:"consolidated_at"`
	ChunksProcessed     int              `json:"chunks_processed"`
}

// ChunkPlan is one partition of reference ids, numbered from 1.
type ChunkPlan struct {
	Number int      `json:"number"`
	Key    string   `json:"key"`
	IDs    []string `json:"ids"`
}
