package workflows

import (
	"errors"
	"time"

	"orgdash/internal/activities"
	"orgdash/internal/models"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetIngestionStatus = "GetIngestionStatus"

const (
	phasePlanning      = "planning"
	phaseProcessing    = "processing"
	phaseConsolidating = "consolidating"
	phaseDone          = "done"
	phaseFailed        = "failed"
)

// IngestionWorkflow plans a run, processes every chunk with bounded
// concurrency and polls consolidation until all chunks are done.
func IngestionWorkflow(ctx workflow.Context, input IngestionInput) (IngestionResult, error) {
	status := IngestionStatus{RunID: input.RunID, Phase: phasePlanning, Chunks: map[string]string{}}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestionStatus, func() (IngestionStatus, error) {
		return status, nil
	}); err != nil {
		return IngestionResult{}, err
	}
	logger := workflow.GetLogger(ctx)
	result := IngestionResult{RunID: input.RunID}

	planCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        30 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        2 * time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{activities.ErrTypeNoReferences},
		},
	})
	var plan activities.PlanIngestionOutput
	if err := workflow.ExecuteActivity(planCtx, "PlanIngestionActivity", activities.PlanIngestionInput{RunID: input.RunID}).Get(ctx, &plan); err != nil {
		status.Phase = phaseFailed
		return result, err
	}
	status.Phase = phaseProcessing
	status.References = plan.References
	status.TotalChunks = len(plan.Chunks)
	result.References = plan.References
	result.TotalChunks = len(plan.Chunks)
	for _, c := range plan.Chunks {
		status.Chunks[c.Key] = string(models.ChunkPending)
	}

	maxAttempts := orDefault(input.ChunkMaxAttempts, 3)
	chunkCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 180 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 3,
			MaximumInterval:    180 * time.Second,
			MaximumAttempts:    int32(maxAttempts),
		},
	})
	hookCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    5,
		},
	})

	sem := workflow.NewBufferedChannel(ctx, orDefault(input.MaxConcurrentChunks, 4))
	wg := workflow.NewWaitGroup(ctx)
	pending := len(plan.Chunks)
	for _, chunk := range plan.Chunks {
		chunk := chunk
		wg.Add(1)
		workflow.Go(ctx, func(gctx workflow.Context) {
			defer wg.Done()
			defer func() { pending-- }()
			sem.Send(gctx, struct{}{})
			defer sem.Receive(gctx, nil)

			status.Chunks[chunk.Key] = string(models.ChunkInFlight)
			var out activities.ProcessChunkOutput
			err := workflow.ExecuteActivity(chunkCtx, "ProcessChunkActivity", activities.ProcessChunkInput{
				RunID:       input.RunID,
				ChunkKey:    chunk.Key,
				IDs:         chunk.IDs,
				MaxAttempts: maxAttempts,
			}).Get(gctx, &out)
			if err == nil {
				status.Chunks[chunk.Key] = string(models.ChunkCompleted)
				status.Completed++
				return
			}

			status.Chunks[chunk.Key] = string(models.ChunkFailed)
			status.Failed++
			logger.Error("chunk failed permanently", "chunk", chunk.Key, "error", err)
			if herr := workflow.ExecuteActivity(hookCtx, "ChunkFailedActivity", activities.ChunkFailedInput{
				RunID:       input.RunID,
				ChunkKey:    chunk.Key,
				IDs:         chunk.IDs,
				MaxAttempts: maxAttempts,
				Reason:      failureReason(err),
			}).Get(gctx, nil); herr != nil {
				logger.Error("chunk failure hook failed", "chunk", chunk.Key, "error", herr)
			}
		})
	}

	cons, err := consolidate(ctx, input, &status, func() bool { return pending == 0 })
	if err != nil {
		status.Phase = phaseFailed
		return result, err
	}
	wg.Wait(ctx)

	status.Phase = phaseDone
	result.Completed = status.Completed
	result.Failed = status.Failed
	result.TotalDocuments = cons.TotalDocuments
	result.Consolidated = cons.Ready
	result.Partial = cons.Partial
	return result, nil
}

// consolidate waits for the first wave of chunks, then checks every recheck
// interval. Once every chunk has returned, or after the last allowed check,
// consolidation is forced.
func consolidate(ctx workflow.Context, input IngestionInput, status *IngestionStatus, chunksDone func() bool) (activities.ConsolidateOutput, error) {
	consolidateCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    2,
		},
	})
	delay := durationOrDefault(input.ConsolidationDelaySeconds, 30)
	recheck := durationOrDefault(input.ConsolidationRecheckSeconds, 120)
	maxChecks := orDefault(input.MaxConsolidationChecks, 15)

	wait := delay
	for check := 1; ; check++ {
		if _, err := workflow.AwaitWithTimeout(ctx, wait, chunksDone); err != nil {
			return activities.ConsolidateOutput{}, err
		}
		status.Phase = phaseConsolidating
		status.Checks = check
		finished := chunksDone()
		force := finished || check >= maxChecks

		var out activities.ConsolidateOutput
		if err := workflow.ExecuteActivity(consolidateCtx, "ConsolidateActivity", activities.ConsolidateInput{Force: force}).Get(ctx, &out); err != nil {
			status.Consolidation = "failed"
			return out, err
		}
		switch {
		case out.Ready && out.Partial:
			status.Consolidation = "partial"
			return out, nil
		case out.Ready:
			status.Consolidation = "completed"
			return out, nil
		case force:
			status.Consolidation = "skipped"
			return out, nil
		}
		status.Consolidation = "waiting"
		wait = recheck
	}
}

func failureReason(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return "chunk timed out: " + timeoutErr.Error()
	}
	return err.Error()
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func durationOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}
