package activities

import (
	"context"
	"errors"

	"orgdash/internal/ingest"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

const ErrTypeNoReferences = "NoReferences"

type Activities struct {
	orchestrator *ingest.Orchestrator
	processor    *ingest.Processor
	consolidator *ingest.Consolidator
}

func New(o *ingest.Orchestrator, p *ingest.Processor, c *ingest.Consolidator) *Activities {
	return &Activities{orchestrator: o, processor: p, consolidator: c}
}

func (a *Activities) PlanIngestionActivity(ctx context.Context, in PlanIngestionInput) (PlanIngestionOutput, error) {
	plan, err := a.orchestrator.Plan(ctx, in.RunID)
	if err != nil {
		if errors.Is(err, ingest.ErrNoReferences) {
			return PlanIngestionOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNoReferences, err)
		}
		return PlanIngestionOutput{}, err
	}
	return planOutput(plan), nil
}

func (a *Activities) ProcessChunkActivity(ctx context.Context, in ProcessChunkInput) (ProcessChunkOutput, error) {
	res, err := a.processor.ProcessChunk(ctx, ingest.ChunkRequest{
		RunID:       in.RunID,
		ChunkKey:    in.ChunkKey,
		IDs:         in.IDs,
		Attempt:     int(activity.GetInfo(ctx).Attempt),
		MaxAttempts: in.MaxAttempts,
	})
	if err != nil {
		return ProcessChunkOutput{}, err
	}
	return ProcessChunkOutput{Count: res.Count, RequestedCount: res.RequestedCount, SuccessRate: res.SuccessRate}, nil
}

// ChunkFailedActivity runs once a chunk has used up its attempts.
func (a *Activities) ChunkFailedActivity(ctx context.Context, in ChunkFailedInput) error {
	_, err := a.processor.MarkFailed(ctx, ingest.ChunkRequest{
		RunID:       in.RunID,
		ChunkKey:    in.ChunkKey,
		IDs:         in.IDs,
		Attempt:     in.MaxAttempts,
		MaxAttempts: in.MaxAttempts,
	}, in.Reason)
	return err
}

func (a *Activities) ConsolidateActivity(ctx context.Context, in ConsolidateInput) (ConsolidateOutput, error) {
	res, err := a.consolidator.Consolidate(ctx, in.Force)
	if err != nil {
		return ConsolidateOutput{}, err
	}
	return ConsolidateOutput{
		Ready:           res.Ready,
		Partial:         res.Partial,
		CompletedChunks: res.Progress.CompletedChunks,
		TotalChunks:     res.Progress.TotalChunks,
		TotalDocuments:  res.Total,
		RecentDocuments: res.Recent,
	}, nil
}
