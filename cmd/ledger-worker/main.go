package main

import (
	"context"
	"errors"
	"os"
	"time"

	"bollette/internal/amqp"
	"bollette/internal/backend"
	"bollette/internal/cache"
	"bollette/internal/cli"
	applog "bollette/internal/log"
	"bollette/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker, os.Stdout)

	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the ledger worker")
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	ledger, err := backend.NewFactory(logger.Logger).CreateLedger(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize ledger", applog.FieldError, err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	seen := cache.NewLRUCache[string](worker.DedupeCacheSize, cfg.LedgerDedupeTTL)
	caches := cache.NewManager()
	caches.Register(seen)
	caches.StartCleanup(time.Hour)
	defer caches.Stop()

	ledgerWorker := worker.NewLedgerWorkerWithCache(ledger, seen)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	ctx = applog.NewContext(ctx, logger)

	go func() {
		err := amqpClient.ConsumeLedgerTransactions(ctx, ledgerWorker.HandleLedgerMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
			os.Exit(1)
		}
	}()

	logger.Info("Ledger worker consuming",
		"queue", cfg.AMQPQueue,
		"dedupe_ttl", cfg.LedgerDedupeTTL,
		"ledger_spreadsheet", cfg.LedgerConfigured())

	cli.WaitForShutdown(ctx, done)
	logger.Info("Ledger-worker shutdown complete")
}
