package services

import (
	"context"
	"fmt"

	"bollette/internal/core"
)

// NextDueCalculator derives a schedule's next due date from its entries.
// It is the only place that computes Schedule.NextDueDate.
type NextDueCalculator struct {
	entries EntryStore
}

func NewNextDueCalculator(entries EntryStore) *NextDueCalculator {
	return &NextDueCalculator{entries: entries}
}

// Recompute returns the earliest unpaid due date of s. Without unpaid
// entries it projects one cadence step past the latest entry, or past the
// schedule start when no entry exists. It has no side effects.
func (c *NextDueCalculator) Recompute(ctx context.Context, s *core.Schedule) (core.Date, error) {
	cadence, err := GetCadence(s.Frequency)
	if err != nil {
		return core.Date{}, err
	}

	unpaid, err := c.entries.FindEntries(ctx, EntryFilter{
		ScheduleID: s.ID,
		Statuses:   core.UnpaidStatuses,
		Order:      OrderDueAsc,
		Limit:      1,
	})
	if err != nil {
		return core.Date{}, fmt.Errorf("find unpaid entries: %w", err)
	}
	if len(unpaid) > 0 {
		return unpaid[0].DueDate, nil
	}

	latest, err := c.entries.FindEntries(ctx, EntryFilter{
		ScheduleID: s.ID,
		Order:      OrderDueDesc,
		Limit:      1,
	})
	if err != nil {
		return core.Date{}, fmt.Errorf("find latest entry: %w", err)
	}
	if len(latest) > 0 {
		return projectNext(cadence, latest[0].DueDate, s), nil
	}

	return projectNext(cadence, s.StartDate, s), nil
}
