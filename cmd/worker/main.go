package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"orgdash/internal/activities"
	"orgdash/internal/app"
	"orgdash/internal/config"
	"orgdash/internal/metrics"
	"orgdash/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress, Logger: tlog.NewStructuredLogger(logger)})
	if err != nil {
		return err
	}
	defer c.Close()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	a.StartSweeper(ctx)

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: max(2, cfg.MaxConcurrentChunks+2),
	})
	workflows.Register(w)
	activities.Register(w, activities.New(a.Orchestrator, a.Processor, a.Consolidator))

	mh, err := metrics.Handler()
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mh}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
	defer srv.Close()

	logger.Info("docsync worker listening", "temporal", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue,
		"cache", cfg.CacheBackend, "metrics", cfg.MetricsAddr)
	return w.Run(worker.InterruptCh())
}
