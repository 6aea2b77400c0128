package workflows

type IngestionInput struct {
	RunID                       string `json:"run_id"`
	MaxConcurrentChunks         int    `json:"max_concurrent_chunks"`
	ChunkMaxAttempts            int    `json:"chunk_max_attempts"`
	ConsolidationDelaySeconds   int    `json:"consolidation_delay_seconds"`
	ConsolidationRecheckSeconds int    `json:"consolidation_recheck_seconds"`
	MaxConsolidationChecks      int    `json:"max_consolidation_checks"`
}

type IngestionStatus struct {
	RunID         string            `json:"run_id"`
	Phase         string            `json:"phase"`
	References    int               `json:"references"`
	TotalChunks   int               `json:"total_chunks"`
	Completed     int               `json:"completed"`
	Failed        int               `json:"failed"`
	Chunks        map[string]string `json:"chunks"`
	Checks        int               `json:"consolidation_checks"`
	Consolidation string            `json:"consolidation"`
}

type IngestionResult struct {
	RunID          string `json:"run_id"`
	References     int    `json:"references"`
	TotalChunks    int    `json:"total_chunks"`
	Completed      int    `json:"completed"`
	Failed         int    `json:"failed"`
	TotalDocuments int    `json:"total_documents"`
	Consolidated   bool   `json:"consolidated"`
	Partial        bool   `json:"partial"`
}
