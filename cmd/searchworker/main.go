package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/pharmacover/internal/app"
	"github.com/samirrijal/pharmacover/internal/pkg/config"
	"github.com/samirrijal/pharmacover/internal/pkg/logging"
	"github.com/samirrijal/pharmacover/internal/pkg/telemetry"
	"github.com/samirrijal/pharmacover/internal/workflows"
)

func main() {
	cfg, err := config.Load("pharmacover-searchworker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	stack, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer stack.Close()
	go stack.DB.ReportPoolStats(ctx, 15*time.Second)

	c, err := client.Dial(client.Options{
		HostPort: cfg.Temporal.HostPort,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	// Cells already run concurrently inside one search; a few searches at a time
	// keeps the shared places rate limiter meaningful.
	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: 4,
	})
	workflows.Register(w, &workflows.Activities{Searches: stack.Searches})

	slog.Info("search worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
