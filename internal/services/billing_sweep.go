package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bollette/internal/core"
	applog "bollette/internal/log"

	"golang.org/x/sync/errgroup"
)

// SweepResult summarizes one pass over the active schedules.
type SweepResult struct {
	Schedules int
	Created   int
	Skipped   int
	Failed    int
}

// Sweeper runs entry generation for every active schedule. It is the
// periodic batch job; it may race with mutation-triggered generation and
// relies on the period uniqueness constraint for that.
type Sweeper struct {
	schedules     ScheduleStore
	generator     *EntryGenerator
	horizonMonths int
	concurrency   int
}

// NewSweeper creates a new sweeper. concurrency bounds how many schedules
// are generated at the same time.
func NewSweeper(schedules ScheduleStore, generator *EntryGenerator, horizonMonths, concurrency int) *Sweeper {
	if horizonMonths <= 0 {
		horizonMonths = DefaultHorizonMonths
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Sweeper{
		schedules:     schedules,
		generator:     generator,
		horizonMonths: horizonMonths,
		concurrency:   concurrency,
	}
}

// Sweep generates the entries of all active schedules up to their horizon.
// A failing schedule is logged and counted without stopping the others; only
// listing the schedules or a cancelled context fails the sweep.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	if s.schedules == nil || s.generator == nil {
		return SweepResult{}, fmt.Errorf("sweeper not properly initialized")
	}

	active, err := s.schedules.ListActiveSchedules(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list active schedules: %w", err)
	}

	slog.InfoContext(ctx, "Sweeping active schedules",
		"total_active", len(active),
		"processing_date", core.DateOf(now).String())

	var (
		mu  sync.Mutex
		res = SweepResult{Schedules: len(active)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range active {
		sched := &active[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			horizon := GenerationHorizon(sched, now, s.horizonMonths)
			gen, err := s.generator.Generate(gctx, sched, horizon, now)

			mu.Lock()
			defer mu.Unlock()
			res.Created += gen.Created
			res.Skipped += gen.Skipped
			if err != nil {
				res.Failed++
				slog.ErrorContext(gctx, "Failed to generate schedule entries",
					applog.FieldScheduleID, sched.ID,
					applog.FieldCreated, gen.Created,
					applog.FieldError, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, err
	}

	slog.InfoContext(ctx, "Schedule sweep complete",
		"schedules", res.Schedules,
		applog.FieldCreated, res.Created,
		applog.FieldSkipped, res.Skipped,
		"failed", res.Failed)

	return res, nil
}
