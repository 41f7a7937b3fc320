package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"bollette/internal/amqp"
	"bollette/internal/cli"
	"bollette/internal/config"
	applog "bollette/internal/log"
	"bollette/internal/services"
)

func main() {
	cli.LoadEnvFile()

	// Logs go to stderr so stdout stays valid JSON.
	logger := cli.SetupLogger(applog.ComponentCLI, os.Stderr)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res := cli.InitBackend(ctx, logger, cfg)
	defer res.Close()

	a := &app{
		store:         res.Store,
		horizonMonths: cfg.GenerationHorizonMonths,
		concurrency:   cfg.SweepConcurrency,
		now:           time.Now,
		out:           os.Stdout,
	}

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "pay" {
		if client := connectNotifier(logger, cfg); client != nil {
			defer client.Close()
			a.notifier = client
		}
	}

	if err := a.run(ctx, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Error("Command failed", applog.FieldError, err)
		os.Exit(1)
	}
}

// connectNotifier returns nil when AMQP is disabled or unreachable; the
// payment is still recorded, only the ledger notification is skipped.
func connectNotifier(logger *applog.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - payments will not reach the ledger")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without ledger notifications", applog.FieldError, err)
		return nil
	}
	return client
}

var _ services.LedgerNotifier = (*amqp.Client)(nil)
