package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	applog "bollette/internal/log"
	"bollette/internal/services"
)

// SweepFunc runs one billing sweep as of now.
type SweepFunc func(ctx context.Context, now time.Time) (services.SweepResult, error)

// SweepRunner runs a billing sweep at startup and then every interval.
type SweepRunner struct {
	sweep    SweepFunc
	interval time.Duration
	clock    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSweepRunner(sweep SweepFunc, interval time.Duration) *SweepRunner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SweepRunner{
		sweep:    sweep,
		interval: interval,
		clock:    time.Now,
	}
}

// Start begins the sweep loop. It fails when the runner is already running.
func (r *SweepRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("sweep runner is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.runLoop(ctx, r.stopCh, r.doneCh)

	logger(ctx).InfoContext(ctx, "Sweep runner started", "interval", r.interval)
	return nil
}

// Stop signals the loop and waits for the sweep in progress, if any.
func (r *SweepRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		logger(ctx).InfoContext(ctx, "Sweep runner stopped gracefully")
		return nil
	case <-ctx.Done():
		logger(ctx).WarnContext(ctx, "Sweep runner stop timed out")
		return ctx.Err()
	}
}

func (r *SweepRunner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// RunOnce runs a single sweep and logs its outcome.
func (r *SweepRunner) RunOnce(ctx context.Context) (services.SweepResult, error) {
	start := time.Now()
	res, err := r.sweep(ctx, r.clock())
	if err != nil {
		logger(ctx).ErrorContext(ctx, "Billing sweep failed",
			applog.FieldError, err,
			applog.FieldDuration, time.Since(start).Milliseconds())
		return res, err
	}

	logger(ctx).InfoContext(ctx, "Billing sweep completed",
		"schedules", res.Schedules,
		applog.FieldCreated, res.Created,
		applog.FieldSkipped, res.Skipped,
		"failed", res.Failed,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return res, nil
}

func (r *SweepRunner) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Sweep immediately on startup
	r.RunOnce(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// logger returns the logger carried by ctx, tagged as the sweep component.
func logger(ctx context.Context) *applog.Logger {
	return applog.FromContext(ctx).WithComponent(applog.ComponentSweep)
}
