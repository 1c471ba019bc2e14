package main

import (
	"context"
	"os"

	"github.com/renezit0/despesa-agil-93/internal/amqp"
	"github.com/renezit0/despesa-agil-93/internal/cli"
	"github.com/renezit0/despesa-agil-93/internal/log"
	"github.com/renezit0/despesa-agil-93/internal/sheets"
	gsheet "github.com/renezit0/despesa-agil-93/internal/sheets/google"
	mem "github.com/renezit0/despesa-agil-93/internal/sheets/memory"
	"github.com/renezit0/despesa-agil-93/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting despesa-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required: the worker consumes domain events")
		os.Exit(1)
	}

	var writer sheets.LedgerWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Mirroring ledger to Google Sheets",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleLedgerSheetName)
	} else {
		writer = mem.New()
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, ledger rows are kept in memory only")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close error", log.FieldError, err)
		}
	})

	ledgerWorker := worker.NewLedgerWorker(writer, logger)
	if err := ledgerWorker.Run(ctx, amqpClient, cfg.WorkerCleanupInterval); err != nil {
		logger.Error("Worker stopped", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
