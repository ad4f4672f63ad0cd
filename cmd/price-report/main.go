package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"csgo-pricer/internal/app"
	"csgo-pricer/internal/config"
	"csgo-pricer/internal/logging"
)

var (
	out      = flag.String("out", "prices.xlsx", "output workbook")
	pageSize = flag.Int("page", 500, "records read per query")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	if a.DB == nil {
		logger.Error("price report needs DATABASE_URL")
		os.Exit(1)
	}

	n, err := writeReport(ctx, a.Store, *out, *pageSize)
	if err != nil {
		logger.Error("write report", "error", err, "records", n)
		os.Exit(1)
	}
	logger.Info("report written", "path", *out, "records", n)
}
