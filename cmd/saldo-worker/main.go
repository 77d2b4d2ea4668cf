package main

import (
	"context"
	"errors"
	"os"
	"time"

	"saldo/internal/amqp"
	"saldo/internal/cli"
	"saldo/internal/importer"
	"saldo/internal/log"
	"saldo/internal/services"
	"saldo/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")).WithComponent(log.ComponentWorker)
	logger.Info("Starting saldo-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the import worker")
		os.Exit(1)
	}
	if cfg.DataBackend != "sqlite" {
		// A memory store would not be shared with the server.
		logger.Error("The import worker needs the sqlite backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	backendResult := cli.InitStore(context.Background(), logger, cfg)
	defer backendResult.Cleanup()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPEventsQueue, cfg.AMQPImportQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// The worker holds no report views; the server's cached views of an
	// imported account expire after REPORT_CACHE_TTL.
	notifier := services.NewNotifier(amqpClient)
	reconciler := importer.NewReconciler(backendResult.Store, notifier)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	importWorker := worker.NewImportWorker(reconciler, cli.GoogleOpener(ctx, logger, cfg), cfg.ImportDir)

	logger.Info("Consuming import jobs", "queue", cfg.AMQPImportQueue)
	if err := amqpClient.ConsumeImportJobs(ctx, importWorker.HandleImportJob); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Import job consumption failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
