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

	"csgo-pricer/internal/app"
	"csgo-pricer/internal/config"
	"csgo-pricer/internal/logging"
)

var (
	interval = flag.Duration("interval", 0, "refresh interval (default REFRESH_INTERVAL)")
	batch    = flag.Int("batch", 0, "records per batch (default REFRESH_BATCH_SIZE)")
	once     = flag.Bool("once", false, "run a single batch and exit")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()
	if *interval > 0 {
		cfg.RefreshInterval = *interval
	}
	if *batch > 0 {
		cfg.RefreshBatchSize = *batch
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if a.DB == nil {
		logger.Warn("no database, refreshed prices will not outlive this process")
	}
	logger.Info("refresher started", "pid", os.Getpid(), "interval", cfg.RefreshInterval,
		"batch", cfg.RefreshBatchSize, "once", *once)

	if *once {
		res, err := a.Refresher.RefreshBatch(ctx, 0)
		if err != nil {
			logger.Error("refresh batch", "error", err)
			os.Exit(1)
		}
		logger.Info("done", "checked", res.Checked, "updated", res.Updated, "failed", res.Failed)
		return
	}

	if err := a.Refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("refresher stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("refresher shut down")
}
