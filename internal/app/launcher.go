package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"orgdash/internal/config"
	"orgdash/internal/ingest"
	"orgdash/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
)

// IngestionWorkflowID is fixed so only one run is live at a time.
const IngestionWorkflowID = "sharepoint-ingestion"

var ErrRunInProgress = errors.New("an ingestion run is already in progress")

type RunResult struct {
	RunID          string `json:"run_id"`
	References     int    `json:"references"`
	TotalChunks    int    `json:"total_chunks"`
	Completed      int    `json:"completed_chunks"`
	Failed         int    `json:"failed_chunks"`
	TotalDocuments int    `json:"total_documents"`
	Partial        bool   `json:"partial"`
}

// Launcher starts ingestion runs with the configured execution strategy.
type Launcher interface {
	// Start begins a run in the background and returns its id.
	Start(ctx context.Context) (string, error)
	// Run performs a run and waits for it to finish.
	Run(ctx context.Context) (RunResult, error)
}

// Launcher picks the strategy from DOCSYNC_EXECUTION. tc is only used for
// temporal execution.
func (a *App) Launcher(tc tclient.Client) (Launcher, error) {
	switch a.Config.Execution {
	case config.ExecutionInline:
		return &InlineLauncher{runner: a.Runner, logger: a.Logger}, nil
	case config.ExecutionTemporal:
		if tc == nil {
			return nil, errors.New("temporal execution needs a temporal client")
		}
		return &TemporalLauncher{client: tc, cfg: a.Config}, nil
	default:
		return nil, fmt.Errorf("unknown execution strategy %q", a.Config.Execution)
	}
}

func newRunID() string {
	return time.Now().UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
}

type TemporalLauncher struct {
	client tclient.Client
	cfg    config.Config
}

func (l *TemporalLauncher) start(ctx context.Context) (tclient.WorkflowRun, string, error) {
	runID := newRunID()
	we, err := l.client.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       IngestionWorkflowID,
		TaskQueue:                                l.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.IngestionWorkflow, workflows.IngestionInput{
		RunID:                       runID,
		MaxConcurrentChunks:         l.cfg.MaxConcurrentChunks,
		ChunkMaxAttempts:            ingest.DefaultMaxAttempts,
		ConsolidationDelaySeconds:   int(l.cfg.ConsolidationDelay / time.Second),
		ConsolidationRecheckSeconds: int(l.cfg.ConsolidationRecheck / time.Second),
		MaxConsolidationChecks:      l.cfg.MaxConsolidationChecks,
	})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return nil, "", ErrRunInProgress
		}
		return nil, "", fmt.Errorf("start ingestion workflow: %w", err)
	}
	return we, runID, nil
}

func (l *TemporalLauncher) Start(ctx context.Context) (string, error) {
	_, runID, err := l.start(ctx)
	return runID, err
}

func (l *TemporalLauncher) Run(ctx context.Context) (RunResult, error) {
	we, runID, err := l.start(ctx)
	if err != nil {
		return RunResult{}, err
	}
	var out workflows.IngestionResult
	if err := we.Get(ctx, &out); err != nil {
		return RunResult{RunID: runID}, err
	}
	return RunResult{
		RunID:          out.RunID,
		References:     out.References,
		TotalChunks:    out.TotalChunks,
		Completed:      out.Completed,
		Failed:         out.Failed,
		TotalDocuments: out.TotalDocuments,
		Partial:        out.Partial,
	}, nil
}

// Status queries the live workflow for its chunk states.
func (l *TemporalLauncher) Status(ctx context.Context) (workflows.IngestionStatus, error) {
	var st workflows.IngestionStatus
	v, err := l.client.QueryWorkflow(ctx, IngestionWorkflowID, "", workflows.QueryGetIngestionStatus)
	if err != nil {
		return st, err
	}
	err = v.Get(&st)
	return st, err
}

type InlineLauncher struct {
	runner *ingest.Runner
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

func (l *InlineLauncher) acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return false
	}
	l.running = true
	return true
}

func (l *InlineLauncher) release() {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

func (l *InlineLauncher) Start(ctx context.Context) (string, error) {
	if !l.acquire() {
		return "", ErrRunInProgress
	}
	runID := newRunID()
	go func() {
		defer l.release()
		if _, err := l.runner.Run(context.WithoutCancel(ctx), runID); err != nil {
			l.logger.Error("inline ingestion failed", "run_id", runID, "error", err)
		}
	}()
	return runID, nil
}

func (l *InlineLauncher) Run(ctx context.Context) (RunResult, error) {
	if !l.acquire() {
		return RunResult{}, ErrRunInProgress
	}
	defer l.release()
	runID := newRunID()
	sum, err := l.runner.Run(ctx, runID)
	return RunResult{
		RunID:          runID,
		References:     sum.Plan.References,
		TotalChunks:    len(sum.Plan.Chunks),
		Completed:      sum.Completed,
		Failed:         sum.Failed,
		TotalDocuments: sum.Consolidation.Total,
		Partial:        sum.Consolidation.Partial,
	}, err
}
