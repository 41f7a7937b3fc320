package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bollette/internal/core"
	applog "bollette/internal/log"

	"github.com/google/uuid"
)

// EntryGenerator materializes the billing periods of a schedule into entries.
type EntryGenerator struct {
	entries   EntryStore
	schedules ScheduleStore
	nextDue   *NextDueCalculator
	newID     func() string
}

// NewEntryGenerator creates a new entry generator
func NewEntryGenerator(entries EntryStore, schedules ScheduleStore) *EntryGenerator {
	return &EntryGenerator{
		entries:   entries,
		schedules: schedules,
		nextDue:   NewNextDueCalculator(entries),
		newID:     uuid.NewString,
	}
}

// Generate creates the missing entries of s from its start date up to
// horizon. Periods that already have an entry, or that another process
// creates concurrently, are counted as skipped. A storage failure aborts the
// run; the counts accumulated so far are returned with the error and the
// entries already created stay committed.
func (g *EntryGenerator) Generate(ctx context.Context, s *core.Schedule, horizon core.Date, now time.Time) (core.GenerationResult, error) {
	var res core.GenerationResult

	if !s.IsActive() {
		return res, nil
	}
	if s.HasEnd() && s.EndDate.Before(s.StartDate) {
		return res, nil
	}

	cadence, err := GetCadence(s.Frequency)
	if err != nil {
		return res, err
	}

	existing, err := g.entries.FindEntries(ctx, EntryFilter{ScheduleID: s.ID})
	if err != nil {
		return res, fmt.Errorf("load existing entries: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		known[e.Period] = struct{}{}
	}

	for cursor := s.StartDate; !cursor.After(horizon); {
		if s.HasEnd() && cursor.After(s.EndDate) {
			break
		}

		key, periodStart := cadence.Period(cursor)
		due := cadence.DueDate(periodStart, s.DayOfMonth, s.StartDate)
		cursor = cadence.Next(periodStart)

		_, seen := known[key]
		if s.Frequency == core.Monthly {
			// Clamping may move the due date to another reporting month.
			adjusted, _ := cadence.Period(due)
			if _, ok := known[adjusted]; ok {
				seen = true
			}
			key = adjusted
		}
		if seen {
			res.Skipped++
			continue
		}

		if s.HasEnd() && due.After(s.EndDate) {
			res.Skipped++
			continue
		}

		entry := &core.Entry{
			ID:         g.newID(),
			ScheduleID: s.ID,
			Period:     key,
			Amount:     s.Amount,
			DueDate:    due,
			Status:     core.InitialStatus(due, now),
			CreatedAt:  now,
		}
		if err := g.entries.CreateEntry(ctx, entry); err != nil {
			if errors.Is(err, core.ErrDuplicatePeriod) {
				slog.DebugContext(ctx, "Period created concurrently, skipping",
					applog.FieldScheduleID, s.ID,
					applog.FieldPeriod, key)
				known[key] = struct{}{}
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("create entry for period %s: %w", key, err)
		}
		known[key] = struct{}{}
		res.Created++
	}

	if err := g.refreshNextDue(ctx, s, now); err != nil {
		return res, err
	}

	slog.InfoContext(ctx, "Generated schedule entries",
		applog.FieldScheduleID, s.ID,
		applog.FieldFrequency, s.Frequency,
		applog.FieldHorizon, horizon.String(),
		applog.FieldCreated, res.Created,
		applog.FieldSkipped, res.Skipped)

	return res, nil
}

// refreshNextDue recomputes the cached next due date and saves the schedule
// only when it changed.
func (g *EntryGenerator) refreshNextDue(ctx context.Context, s *core.Schedule, now time.Time) error {
	next, err := g.nextDue.Recompute(ctx, s)
	if err != nil {
		return fmt.Errorf("recompute next due date: %w", err)
	}
	if next.Equal(s.NextDueDate) {
		return nil
	}
	s.NextDueDate = next
	s.UpdatedAt = now
	if err := g.schedules.SaveSchedule(ctx, s); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}
