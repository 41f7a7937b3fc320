package services_test

import (
	"context"
	"testing"

	"bollette/internal/core"
	"bollette/internal/services"
	"bollette/internal/storage/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newElectricity() services.NewSchedule {
	return services.NewSchedule{
		Name:      "Electricity",
		Vendor:    "Power Co",
		Category:  "Utilities",
		Amount:    decimal.RequireFromString("50"),
		Frequency: core.Monthly,
		StartDate: core.NewDate(2024, 1, 15),
	}
}

func TestScheduleService_Create(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := services.NewScheduleService(store, store, 0)

	sched, res, err := svc.Create(ctx, newElectricity(), testNow)
	require.NoError(t, err)

	assert.NotEmpty(t, sched.ID)
	assert.Equal(t, 15, sched.DayOfMonth)
	assert.Equal(t, core.ScheduleActive, sched.Status)
	// Horizon is 2025-01-15: January 2024 through January 2025.
	assert.Equal(t, core.GenerationResult{Created: 13}, res)
	assert.Equal(t, "2024-01-15", sched.NextDueDate.String())

	stored, err := store.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", stored.NextDueDate.String())
}

func TestScheduleService_CreateValidation(t *testing.T) {
	svc := services.NewScheduleService(memory.New(), memory.New(), 12)

	in := newElectricity()
	in.Amount = decimal.Zero
	_, _, err := svc.Create(context.Background(), in, testNow)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	in = newElectricity()
	in.EndDate = core.NewDate(2023, 12, 31)
	_, _, err = svc.Create(context.Background(), in, testNow)
	assert.ErrorIs(t, err, core.ErrEndBeforeStart)
}

func TestScheduleService_CreateHorizonStopsAtEndDate(t *testing.T) {
	store := memory.New()
	svc := services.NewScheduleService(store, store, 12)

	in := newElectricity()
	in.EndDate = core.NewDate(2024, 4, 30)
	_, res, err := svc.Create(context.Background(), in, testNow)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Created)
}

func TestScheduleService_AmountChangeIsolation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := services.NewScheduleService(store, store, 12)
	payments := services.NewPaymentService(store, store, nil)

	sched, _, err := svc.Create(ctx, newElectricity(), testNow)
	require.NoError(t, err)

	entries := entriesOf(t, store, sched.ID)
	_, err = payments.MarkPaid(ctx, entries[0].ID, core.PaymentDetails{Method: "card"}, testNow)
	require.NoError(t, err)

	newAmount := decimal.RequireFromString("62.40")
	updated, res, err := svc.Update(ctx, sched.ID, services.ScheduleUpdate{Amount: &newAmount}, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(12), res.AmountUpdated)
	assert.True(t, updated.Amount.Equal(newAmount))

	for _, e := range entriesOf(t, store, sched.ID) {
		if e.IsPaid() {
			assert.Equal(t, "50", e.Amount.String(), "paid entry %s changed amount", e.Period)
			continue
		}
		assert.True(t, e.Amount.Equal(newAmount), "unpaid entry %s has amount %s", e.Period, e.Amount)
	}
}

func TestScheduleService_AmountUnchangedIsNoop(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := services.NewScheduleService(store, store, 12)

	sched, _, err := svc.Create(ctx, newElectricity(), testNow)
	require.NoError(t, err)

	n, err := svc.ApplyAmountChange(ctx, sched, decimal.RequireFromString("50.00"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduleService_FrequencyChange(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := services.NewScheduleService(store, store, 12)
	payments := services.NewPaymentService(store, store, nil)

	sched, _, err := svc.Create(ctx, newElectricity(), testNow)
	require.NoError(t, err)
	first := entriesOf(t, store, sched.ID)[0]
	_, err = payments.MarkPaid(ctx, first.ID, core.PaymentDetails{}, testNow)
	require.NoError(t, err)

	quarterly := core.Quarterly
	_, res, err := svc.Update(ctx, sched.ID, services.ScheduleUpdate{Frequency: &quarterly}, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(12), res.Deleted)
	assert.Equal(t, 5, res.Generation.Created)

	var periods []string
	for _, e := range entriesOf(t, store, sched.ID) {
		periods = append(periods, e.Period)
	}
	// The paid monthly entry keeps its old key next to the new quarterly keys.
	assert.ElementsMatch(t, []string{"2024-01", "2024-Q1", "2024-Q2", "2024-Q3", "2024-Q4", "2025-Q1"}, periods)
}

func TestScheduleService_Deactivate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := services.NewScheduleService(store, store, 3)

	sched, res, err := svc.Create(ctx, newElectricity(), testNow)
	require.NoError(t, err)
	require.Equal(t, 4, res.Created)

	inactive := core.ScheduleInactive
	later := testNow.AddDate(0, 6, 0)
	updated, mres, err := svc.Update(ctx, sched.ID, services.ScheduleUpdate{Status: &inactive}, later)
	require.NoError(t, err)
	assert.Equal(t, core.GenerationResult{}, mres.Generation)
	assert.Equal(t, core.ScheduleInactive, updated.Status)
	assert.Len(t, entriesOf(t, store, sched.ID), 4)
	assert.Equal(t, "2024-01-15", updated.NextDueDate.String())
}

func TestScheduleService_UpdateValidationLeavesEntriesAlone(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := services.NewScheduleService(store, store, 12)

	sched, _, err := svc.Create(ctx, newElectricity(), testNow)
	require.NoError(t, err)

	amount := decimal.RequireFromString("80")
	badDay := 40
	_, _, err = svc.Update(ctx, sched.ID, services.ScheduleUpdate{Amount: &amount, DayOfMonth: &badDay}, testNow)
	require.ErrorIs(t, err, core.ErrInvalidDayOfMonth)

	for _, e := range entriesOf(t, store, sched.ID) {
		assert.Equal(t, "50", e.Amount.String())
	}
}

func TestScheduleService_UpdateUnknown(t *testing.T) {
	store := memory.New()
	svc := services.NewScheduleService(store, store, 12)

	_, _, err := svc.Update(context.Background(), "missing", services.ScheduleUpdate{}, testNow)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestScheduleService_Delete(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := services.NewScheduleService(store, store, 12)

	sched, _, err := svc.Create(ctx, newElectricity(), testNow)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, sched.ID))
	assert.Empty(t, entriesOf(t, store, sched.ID))
	_, err = store.GetSchedule(ctx, sched.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestGenerationHorizon(t *testing.T) {
	sched := &core.Schedule{}
	assert.Equal(t, "2025-01-15", services.GenerationHorizon(sched, testNow, 12).String())

	sched.EndDate = core.NewDate(2024, 6, 30)
	assert.Equal(t, "2024-06-30", services.GenerationHorizon(sched, testNow, 12).String())
}
