package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orgdash/internal/app"
	"orgdash/internal/config"
	"orgdash/internal/ingest"

	"github.com/spf13/cobra"
	tclient "go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
)

type session struct {
	app      *app.App
	launcher app.Launcher
	temporal tclient.Client
	closeLog func() error
}

func open(ctx context.Context) (*session, error) {
	cfg := config.Load()
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	s := &session{app: a, closeLog: closeLog}
	if cfg.Execution == config.ExecutionTemporal {
		s.temporal, err = tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress, Logger: tlog.NewStructuredLogger(logger)})
		if err != nil {
			a.Close()
			_ = closeLog()
			return nil, fmt.Errorf("dial temporal: %w", err)
		}
	}
	if s.launcher, err = a.Launcher(s.temporal); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	if s.temporal != nil {
		s.temporal.Close()
	}
	s.app.Close()
	_ = s.closeLog()
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Publish the loading placeholder and start a run when no stats are cached",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			o := s.app.Orchestrator
			if force {
				if err := o.Reset(ctx); err != nil {
					return err
				}
			} else {
				has, err := o.HasStats(ctx)
				if err != nil {
					return err
				}
				if has {
					fmt.Fprintln(cmd.OutOrStdout(), "stats already cached, use --force to rebuild")
					return nil
				}
			}
			if err := o.PublishLoading(ctx); err != nil {
				return err
			}
			// An inline run lives in this process, so wait for it.
			if s.app.Config.Execution == config.ExecutionInline {
				res, err := s.launcher.Run(ctx)
				if err != nil {
					return err
				}
				return renderRun(cmd.OutOrStdout(), res)
			}
			runID, err := s.launcher.Start(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingestion started: %s\n", runID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "clear cached stats and progress first")
	return cmd
}

func runCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a full ingestion and wait for it to finish",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			s, err := open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.launcher.Run(ctx)
			if err != nil {
				return err
			}
			return renderRun(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up waiting after this long")
	return cmd
}

func statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cached stats, chunk progress and the live workflow state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			d, err := s.app.Catalog.Detailed(ctx)
			if err != nil {
				return err
			}
			var live *liveStatus
			if tl, ok := s.launcher.(*app.TemporalLauncher); ok {
				if st, err := tl.Status(ctx); err == nil {
					live = &liveStatus{Phase: st.Phase, Completed: st.Completed, Failed: st.Failed, Total: st.TotalChunks, Checks: st.Checks}
				}
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Detailed ingest.DetailedProgress `json:"detailed"`
					Workflow *liveStatus            `json:"workflow,omitempty"`
				}{d, live})
			}
			renderStatus(cmd.OutOrStdout(), d, live, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of tables")
	return cmd
}
