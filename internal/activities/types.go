package activities

import (
	"orgdash/internal/ingest"
	"orgdash/internal/models"
)

type PlanIngestionInput struct {
	RunID string `json:"run_id"`
}

type PlanIngestionOutput struct {
	RunID           string             `json:"run_id"`
	SiteName        string             `json:"site_name"`
	References      int                `json:"references"`
	Chunks          []models.ChunkPlan `json:"chunks"`
	Truncated       bool               `json:"truncated"`
	MaxDepthScanned int                `json:"max_depth_scanned"`
}

func planOutput(p ingest.PlanResult) PlanIngestionOutput {
	return PlanIngestionOutput{
		RunID:           p.RunID,
		SiteName:        p.SiteName,
		References:      p.References,
		Chunks:          p.Chunks,
		Truncated:       p.Truncated,
		MaxDepthScanned: p.MaxDepthScanned,
	}
}

type ProcessChunkInput struct {
	RunID       string   `json:"run_id"`
	ChunkKey    string   `json:"chunk_key"`
	IDs         []string `json:"ids"`
	MaxAttempts int      `json:"max_attempts"`
}

type ProcessChunkOutput struct {
	Count          int     `json:"count"`
	RequestedCount int     `json:"requested_count"`
	SuccessRate    float64 `json:"success_rate"`
}

type ChunkFailedInput struct {
	RunID       string   `json:"run_id"`
	ChunkKey    string   `json:"chunk_key"`
	IDs         []string `json:"ids"`
	MaxAttempts int      `json:"max_attempts"`
	Reason      string   `json:"reason"`
}

type ConsolidateInput struct {
	Force bool `json:"force"`
}

type ConsolidateOutput struct {
	Ready           bool `json:"ready"`
	Partial         bool `json:"partial"`
	CompletedChunks int  `json:"completed_chunks"`
	TotalChunks     int  `json:"total_chunks"`
	TotalDocuments  int  `json:"total_documents"`
	RecentDocuments int  `json:"recent_documents"`
}
