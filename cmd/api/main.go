package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/pharmacover/internal/adapters/http"
	natsadapter "github.com/samirrijal/pharmacover/internal/adapters/nats"
	"github.com/samirrijal/pharmacover/internal/app"
	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/ports"
	"github.com/samirrijal/pharmacover/internal/pkg/config"
	"github.com/samirrijal/pharmacover/internal/pkg/logging"
	"github.com/samirrijal/pharmacover/internal/pkg/telemetry"
	"github.com/samirrijal/pharmacover/internal/workflows"
)

const statsInvalidatorDurable = "api-stats-invalidator"

func main() {
	cfg, err := config.Load("pharmacover-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
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

	if err := stack.Users.EnsureAdmin(ctx); err != nil {
		log.Fatalf("admin: %v", err)
	}
	go stack.DB.ReportPoolStats(ctx, 15*time.Second)

	deps := &http.Dependencies{
		Users:         stack.Users,
		Searches:      stack.Searches,
		DefaultPolicy: domain.GridPolicy{Step: cfg.Search.DefaultStep, Radius: cfg.Search.DefaultRadius},
		SearchTimeout: cfg.Search.SearchTimeout,
		DB:            stack.DB,
	}
	if stack.Cache != nil {
		deps.Cache = stack.Cache
		deps.CacheHealth = stack.Cache
	}

	// Events: progress relay for WebSocket clients, and stats invalidation on completion.
	if stack.Publisher != nil {
		deps.NATS = stack.Publisher.Conn()
		sub, err := natsadapter.NewSubscriber(stack.Publisher.Conn())
		if err != nil {
			slog.Warn("nats subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			deps.Relay = sub
			if deps.Cache != nil {
				if err := sub.SubscribeCompleted(ctx, statsInvalidatorDurable, invalidateStats(deps.Cache)); err != nil {
					slog.Warn("stats invalidation disabled", "error", err)
				}
			}
		}
	}

	// Asynchronous searches run as Temporal workflows on the search worker.
	if cfg.Temporal.Enabled {
		tc, err := client.Dial(client.Options{
			HostPort: cfg.Temporal.HostPort,
			Logger:   logger,
		})
		if err != nil {
			slog.Warn("temporal unavailable, async searches disabled", "error", err)
		} else {
			defer tc.Close()
			deps.Async = workflows.NewStarter(tc, cfg.Temporal.TaskQueue, cfg.Search.SearchTimeout)
		}
	}

	// Fiber
	fapp := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: cfg.Search.SearchTimeout + time.Duration(cfg.Server.WriteTimeout)*time.Second,
		BodyLimit:    1024 * 1024,
		AppName:      "Pharmacover API",
	})
	fapp.Use(recover.New())
	fapp.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000, http://localhost:5173",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, If-None-Match",
		MaxAge:       3600,
	}))

	http.SetupRoutes(fapp, deps, http.RouteOptions{RateLimit: 120})

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := fapp.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := fapp.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// invalidateStats drops the cached global request total whenever a search completes.
func invalidateStats(cache ports.CacheService) func(context.Context, *domain.SearchCompleted) error {
	return func(ctx context.Context, ev *domain.SearchCompleted) error {
		if err := cache.Delete(ctx, http.StatsCacheKey); err != nil {
			slog.Warn("stats cache invalidation failed", "search_id", ev.SearchID, "error", err)
			return err
		}
		return nil
	}
}
