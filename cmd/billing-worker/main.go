package main

import (
	"context"
	"os"
	"time"

	"bollette/internal/cli"
	applog "bollette/internal/log"
	"bollette/internal/services"
	"bollette/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentSweep, os.Stdout)

	logger.Info("Starting billing-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	startCtx, startCancel := context.WithTimeout(context.Background(), time.Minute)
	res := cli.InitBackend(startCtx, logger, cfg)
	startCancel()
	defer res.Close()

	schedules := services.NewScheduleService(res.Store, res.Store, cfg.GenerationHorizonMonths)
	sweeper := services.NewSweeper(res.Store, schedules.Generator(), cfg.GenerationHorizonMonths, cfg.SweepConcurrency)
	runner := worker.NewSweepRunner(sweeper.Sweep, cfg.SweepInterval)

	logger.Info("Billing sweep configured",
		"interval", cfg.SweepInterval,
		"concurrency", cfg.SweepConcurrency,
		applog.FieldHorizon, cfg.GenerationHorizonMonths,
		"backend", cfg.DataBackend)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := runner.Stop(shutdownCtx); err != nil {
			logger.Warn("Sweep runner did not stop cleanly", applog.FieldError, err)
		}
	})
	ctx = applog.NewContext(ctx, logger)

	if err := runner.Start(ctx); err != nil {
		logger.Error("Failed to start sweep runner", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Billing-worker shutdown complete")
}
