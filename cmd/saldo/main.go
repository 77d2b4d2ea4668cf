package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"saldo/internal/amqp"
	"saldo/internal/cache"
	"saldo/internal/cli"
	"saldo/internal/core"
	apphttp "saldo/internal/http"
	"saldo/internal/importer"
	"saldo/internal/ledger"
	"saldo/internal/log"
	"saldo/internal/middleware/ratelimit"
	"saldo/internal/report"
	"saldo/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)
	ctx := context.Background()

	backendResult := cli.InitStore(ctx, logger, cfg)
	store := backendResult.Store

	// AMQP is optional: without it ledger events are skipped and imports
	// run inside the request.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPEventsQueue, cfg.AMQPImportQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"events_queue", cfg.AMQPEventsQueue,
				"import_queue", cfg.AMQPImportQueue)
		}
	}

	views := cache.NewLRUCache[[]report.Row](cfg.ReportCacheSize, cfg.ReportCacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(views)
	cacheManager.StartCleanup(time.Minute)

	reports := report.NewService(store, views)
	var publisher services.EventPublisher
	if amqpClient != nil {
		publisher = amqpClient
	}
	notifier := services.NewNotifier(publisher, reports)
	propagator := ledger.NewPropagator()

	svc := apphttp.Services{
		Incomes:    services.NewTransactionService(core.Income, store, propagator, notifier),
		Expenses:   services.NewTransactionService(core.Expense, store, propagator, notifier),
		Categories: services.NewCategoryService(store, notifier),
		Accounts:   services.NewAccountService(store, propagator, notifier),
		Reports:    reports,
		Importer:   importer.NewReconciler(store, notifier),
		ImportDir:  cfg.ImportDir,
		Google:     cli.GoogleOpener(ctx, logger, cfg),
	}
	if amqpClient != nil {
		svc.Queue = amqpClient
	}

	sweeper := services.NewOverdueSweeper(store, notifier, services.OverdueSweeperConfig{
		Interval: cfg.OverdueSweepInterval,
	})
	if err := sweeper.Start(ctx); err != nil {
		logger.Error("Failed to start overdue sweeper", "error", err)
		os.Exit(1)
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger: logger,
		ImportLimit: ratelimit.Config{
			Requests: cfg.ImportRateLimit,
			Period:   cfg.ImportRatePeriod,
		},
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", "error", err)
		os.Exit(1)
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := sweeper.Stop(ctx); err != nil {
			logger.Error("Overdue sweeper shutdown error", "error", err)
		}
		cacheManager.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", "error", err)
			}
		}
		if err := backendResult.Cleanup(); err != nil {
			logger.Error("Store close error", "error", err)
		}
	})

	logger.InfoContext(ctx, "Starting saldo server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
