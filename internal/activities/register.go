package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.PlanIngestionActivity)
	w.RegisterActivity(a.ProcessChunkActivity)
	w.RegisterActivity(a.ChunkFailedActivity)
	w.RegisterActivity(a.ConsolidateActivity)
}
