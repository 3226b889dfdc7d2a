package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/acme/lead-engagement/internal/app"
	"github.com/acme/lead-engagement/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "configs/config.yaml"), "path to configuration file")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close(context.Background())

	cfg := container.Config
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.App.Name+"-scheduler", cfg.App.Version)
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if err := container.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to ensure scylla schema: %v", err)
	}

	svc := container.Services()
	if err := svc.Followup.Restore(ctx); err != nil {
		log.Fatalf("failed to restore job schedule timers: %v", err)
	}

	timerServer, mux := container.FollowupServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Dispatcher.Run(gctx)
	})
	g.Go(func() error {
		if err := timerServer.Start(mux); err != nil {
			return err
		}
		<-gctx.Done()
		timerServer.Shutdown()
		return nil
	})

	container.Logger.Info("scheduler started", zap.Duration("tick", cfg.Scheduler.TickInterval))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("scheduler terminated: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
