package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bollette/internal/core"
	applog "bollette/internal/log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultHorizonMonths is how far ahead a mutation-triggered generation run
// materializes entries.
const DefaultHorizonMonths = 12

// NewSchedule holds the input for creating a schedule. A zero DayOfMonth
// defaults to the start date's day, an empty Status to active.
type NewSchedule struct {
	Name       string
	Vendor     string
	Category   string
	Amount     decimal.Decimal
	Frequency  core.Frequency
	StartDate  core.Date
	EndDate    core.Date
	DayOfMonth int
	Status     core.ScheduleStatus
}

// ScheduleUpdate holds the optional edits of a schedule. Nil fields are left
// unchanged; ClearEndDate removes the end date.
type ScheduleUpdate struct {
	Name         *string
	Vendor       *string
	Category     *string
	Amount       *decimal.Decimal
	Frequency    *core.Frequency
	Status       *core.ScheduleStatus
	DayOfMonth   *int
	EndDate      *core.Date
	ClearEndDate bool
}

// MutationResult reports what an update did to the schedule's entries.
type MutationResult struct {
	AmountUpdated int64
	Deleted       int64
	Generation    core.GenerationResult
}

// ScheduleService applies schedule mutations and keeps entries and
// bookkeeping consistent with them.
type ScheduleService struct {
	schedules     ScheduleStore
	entries       EntryStore
	generator     *EntryGenerator
	nextDue       *NextDueCalculator
	horizonMonths int
}

func NewScheduleService(schedules ScheduleStore, entries EntryStore, horizonMonths int) *ScheduleService {
	if horizonMonths <= 0 {
		horizonMonths = DefaultHorizonMonths
	}
	return &ScheduleService{
		schedules:     schedules,
		entries:       entries,
		generator:     NewEntryGenerator(entries, schedules),
		nextDue:       NewNextDueCalculator(entries),
		horizonMonths: horizonMonths,
	}
}

// Generator exposes the generator used for mutation-triggered runs.
func (s *ScheduleService) Generator() *EntryGenerator {
	return s.generator
}

// Horizon returns min(now + horizon months, end date) for sched.
func (s *ScheduleService) Horizon(sched *core.Schedule, now time.Time) core.Date {
	return GenerationHorizon(sched, now, s.horizonMonths)
}

// GenerationHorizon returns min(now + months, end date).
func GenerationHorizon(sched *core.Schedule, now time.Time, months int) core.Date {
	return core.MinDate(core.DateOf(now).AddMonths(months), sched.EndDate)
}

// Create validates and stores a new schedule, then generates its entries
// when it is active.
func (s *ScheduleService) Create(ctx context.Context, in NewSchedule, now time.Time) (*core.Schedule, core.GenerationResult, error) {
	sched := &core.Schedule{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Vendor:     in.Vendor,
		Category:   in.Category,
		Amount:     in.Amount,
		Frequency:  in.Frequency,
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
		DayOfMonth: in.DayOfMonth,
		Status:     in.Status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if sched.DayOfMonth == 0 {
		sched.DayOfMonth = sched.StartDate.Day()
	}
	if sched.Status == "" {
		sched.Status = core.ScheduleActive
	}
	if err := sched.Validate(); err != nil {
		return nil, core.GenerationResult{}, err
	}

	next, err := s.nextDue.Recompute(ctx, sched)
	if err != nil {
		return nil, core.GenerationResult{}, err
	}
	sched.NextDueDate = next

	if err := s.schedules.SaveSchedule(ctx, sched); err != nil {
		return nil, core.GenerationResult{}, fmt.Errorf("save schedule: %w", err)
	}

	slog.InfoContext(ctx, "Schedule created",
		applog.FieldScheduleID, sched.ID,
		applog.FieldFrequency, sched.Frequency,
		applog.FieldAmount, sched.Amount.String())

	res, err := s.generate(ctx, sched, now)
	return sched, res, err
}

// Update applies edits to the schedule with the given id. Amount and
// frequency changes are propagated to unpaid entries; an active result is
// regenerated up to the horizon.
func (s *ScheduleService) Update(ctx context.Context, id string, upd ScheduleUpdate, now time.Time) (*core.Schedule, MutationResult, error) {
	var res MutationResult

	sched, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return nil, res, fmt.Errorf("get schedule %s: %w", id, err)
	}

	candidate := *sched
	applyFields(&candidate, upd)
	if upd.Amount != nil {
		candidate.Amount = *upd.Amount
	}
	if upd.Frequency != nil {
		candidate.Frequency = *upd.Frequency
	}
	if upd.Status != nil {
		candidate.Status = *upd.Status
	}
	if err := candidate.Validate(); err != nil {
		return nil, res, err
	}

	if upd.Amount != nil {
		if res.AmountUpdated, err = s.ApplyAmountChange(ctx, sched, *upd.Amount); err != nil {
			return nil, res, err
		}
	}
	if upd.Frequency != nil {
		if res.Deleted, err = s.ApplyFrequencyChange(ctx, sched, *upd.Frequency); err != nil {
			return nil, res, err
		}
	}
	if upd.Status != nil {
		s.ApplyStatusChange(sched, *upd.Status)
	}
	applyFields(sched, upd)
	sched.UpdatedAt = now

	if !sched.IsActive() {
		next, err := s.nextDue.Recompute(ctx, sched)
		if err != nil {
			return nil, res, err
		}
		sched.NextDueDate = next
	}
	if err := s.schedules.SaveSchedule(ctx, sched); err != nil {
		return nil, res, fmt.Errorf("save schedule: %w", err)
	}

	res.Generation, err = s.generate(ctx, sched, now)
	return sched, res, err
}

// ApplyAmountChange moves every unpaid entry to the new amount. Paid
// entries keep the amount they were settled with.
func (s *ScheduleService) ApplyAmountChange(ctx context.Context, sched *core.Schedule, amount decimal.Decimal) (int64, error) {
	if sched.Amount.Equal(amount) {
		return 0, nil
	}
	n, err := s.entries.UpdateEntryAmounts(ctx, EntryFilter{
		ScheduleID: sched.ID,
		Statuses:   core.UnpaidStatuses,
	}, amount)
	if err != nil {
		return 0, fmt.Errorf("update unpaid entry amounts: %w", err)
	}
	slog.InfoContext(ctx, "Schedule amount changed",
		applog.FieldScheduleID, sched.ID,
		"old_amount", sched.Amount.String(),
		"new_amount", amount.String(),
		"entries_updated", n)
	sched.Amount = amount
	return n, nil
}

// ApplyFrequencyChange drops every unpaid entry so the next generation run
// repopulates the horizon under the new cadence. Paid entries keep the
// period keys of the old cadence.
func (s *ScheduleService) ApplyFrequencyChange(ctx context.Context, sched *core.Schedule, frequency core.Frequency) (int64, error) {
	if sched.Frequency == frequency {
		return 0, nil
	}
	if !frequency.Valid() {
		return 0, core.ErrInvalidFrequency
	}
	n, err := s.entries.DeleteEntries(ctx, EntryFilter{
		ScheduleID: sched.ID,
		Statuses:   core.UnpaidStatuses,
	})
	if err != nil {
		return 0, fmt.Errorf("delete unpaid entries: %w", err)
	}
	slog.InfoContext(ctx, "Schedule frequency changed",
		applog.FieldScheduleID, sched.ID,
		"old_frequency", sched.Frequency,
		"new_frequency", frequency,
		"entries_deleted", n)
	sched.Frequency = frequency
	return n, nil
}

// ApplyStatusChange only changes the status; deactivating a schedule leaves
// its entries in place and just stops future generation.
func (s *ScheduleService) ApplyStatusChange(sched *core.Schedule, status core.ScheduleStatus) {
	sched.Status = status
}

// Delete removes a schedule together with its entries.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	if err := s.schedules.DeleteSchedule(ctx, id); err != nil {
		return fmt.Errorf("delete schedule %s: %w", id, err)
	}
	slog.InfoContext(ctx, "Schedule deleted", applog.FieldScheduleID, id)
	return nil
}

func (s *ScheduleService) generate(ctx context.Context, sched *core.Schedule, now time.Time) (core.GenerationResult, error) {
	if !sched.IsActive() {
		return core.GenerationResult{}, nil
	}
	return s.generator.Generate(ctx, sched, s.Horizon(sched, now), now)
}

func applyFields(sched *core.Schedule, upd ScheduleUpdate) {
	if upd.Name != nil {
		sched.Name = *upd.Name
	}
	if upd.Vendor != nil {
		sched.Vendor = *upd.Vendor
	}
	if upd.Category != nil {
		sched.Category = *upd.Category
	}
	if upd.DayOfMonth != nil {
		sched.DayOfMonth = *upd.DayOfMonth
	}
	if upd.EndDate != nil {
		sched.EndDate = *upd.EndDate
	}
	if upd.ClearEndDate {
		sched.EndDate = core.Date{}
	}
}
