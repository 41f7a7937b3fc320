package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bollette/internal/core"
	"bollette/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "bollette.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testSchedule() *core.Schedule {
	return &core.Schedule{
		ID:         "sched-1",
		Name:       "Internet",
		Vendor:     "FiberNet",
		Category:   "Utilities",
		Amount:     decimal.RequireFromString("29.90"),
		Frequency:  core.Monthly,
		StartDate:  core.NewDate(2024, 1, 15),
		DayOfMonth: 31,
		Status:     core.ScheduleActive,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
}

func testEntry(id, period string, due core.Date) *core.Entry {
	return &core.Entry{
		ID:         id,
		ScheduleID: "sched-1",
		Period:     period,
		Amount:     decimal.RequireFromString("29.90"),
		DueDate:    due,
		Status:     core.EntryPending,
		CreatedAt:  testNow,
	}
}

func TestSQLiteRepository_ScheduleRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	s := testSchedule()
	require.NoError(t, repo.SaveSchedule(ctx, s))

	got, err := repo.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Name, got.Name)
	assert.True(t, s.Amount.Equal(got.Amount))
	assert.True(t, s.StartDate.Equal(got.StartDate))
	assert.True(t, got.EndDate.IsZero())
	assert.Nil(t, got.LastPaidDate)
	assert.True(t, s.CreatedAt.Equal(got.CreatedAt))

	paid := testNow.Add(time.Hour)
	s.EndDate = core.NewDate(2024, 12, 31)
	s.NextDueDate = core.NewDate(2024, 2, 29)
	s.LastPaidDate = &paid
	s.Status = core.SchedulePaused
	require.NoError(t, repo.SaveSchedule(ctx, s))

	got, err = repo.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-12-31", got.EndDate.String())
	assert.Equal(t, "2024-02-29", got.NextDueDate.String())
	require.NotNil(t, got.LastPaidDate)
	assert.True(t, paid.Equal(*got.LastPaidDate))

	active, err := repo.ListActiveSchedules(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := repo.ListSchedules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteRepository_GetScheduleNotFound(t *testing.T) {
	_, err := newTestRepo(t).GetSchedule(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLiteRepository_DuplicatePeriod(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveSchedule(ctx, testSchedule()))

	require.NoError(t, repo.CreateEntry(ctx, testEntry("e-1", "2024-01", core.NewDate(2024, 1, 31))))
	err := repo.CreateEntry(ctx, testEntry("e-2", "2024-01", core.NewDate(2024, 1, 31)))
	assert.ErrorIs(t, err, core.ErrDuplicatePeriod)
}

func TestSQLiteRepository_EntryForUnknownSchedule(t *testing.T) {
	err := newTestRepo(t).CreateEntry(context.Background(), testEntry("e-1", "2024-01", core.NewDate(2024, 1, 31)))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLiteRepository_FindEntries(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveSchedule(ctx, testSchedule()))

	require.NoError(t, repo.CreateEntry(ctx, testEntry("e-2", "2024-02", core.NewDate(2024, 2, 29))))
	require.NoError(t, repo.CreateEntry(ctx, testEntry("e-1", "2024-01", core.NewDate(2024, 1, 31))))
	overdue := testEntry("e-3", "2024-03", core.NewDate(2024, 3, 31))
	overdue.Status = core.EntryOverdue
	require.NoError(t, repo.CreateEntry(ctx, overdue))
	_, err := repo.MarkEntryPaid(ctx, "e-1", core.PaymentDetails{PaidDate: testNow})
	require.NoError(t, err)

	all, err := repo.FindEntries(ctx, services.EntryFilter{ScheduleID: "sched-1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"e-1", "e-2", "e-3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	unpaid, err := repo.FindEntries(ctx, services.EntryFilter{
		ScheduleID: "sched-1",
		Statuses:   core.UnpaidStatuses,
		Order:      services.OrderDueDesc,
		Limit:      1,
	})
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, "e-3", unpaid[0].ID)
}

func TestSQLiteRepository_BulkUpdatesOnlyMatchUnpaid(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveSchedule(ctx, testSchedule()))
	require.NoError(t, repo.CreateEntry(ctx, testEntry("e-1", "2024-01", core.NewDate(2024, 1, 31))))
	require.NoError(t, repo.CreateEntry(ctx, testEntry("e-2", "2024-02", core.NewDate(2024, 2, 29))))
	_, err := repo.MarkEntryPaid(ctx, "e-1", core.PaymentDetails{PaidDate: testNow})
	require.NoError(t, err)

	unpaid := services.EntryFilter{ScheduleID: "sched-1", Statuses: core.UnpaidStatuses}
	n, err := repo.UpdateEntryAmounts(ctx, unpaid, decimal.RequireFromString("35"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	paid, err := repo.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, "29.9", paid.Amount.String())

	n, err = repo.DeleteEntries(ctx, unpaid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetEntry(ctx, "e-2")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLiteRepository_MarkEntryPaid(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveSchedule(ctx, testSchedule()))
	require.NoError(t, repo.CreateEntry(ctx, testEntry("e-1", "2024-01", core.NewDate(2024, 1, 31))))

	e, err := repo.MarkEntryPaid(ctx, "e-1", core.PaymentDetails{
		PaidDate:  testNow,
		Method:    "card",
		Reference: "R-7",
		Notes:     "autopay",
		PaidBy:    "sam",
	})
	require.NoError(t, err)
	assert.Equal(t, core.EntryPaid, e.Status)
	require.NotNil(t, e.PaidDate)
	assert.True(t, testNow.Equal(*e.PaidDate))
	assert.Equal(t, "card", e.PaymentMethod)
	assert.Equal(t, "R-7", e.PaymentReference)
	assert.Equal(t, "autopay", e.Notes)
	assert.Equal(t, "sam", e.PaidBy)

	_, err = repo.MarkEntryPaid(ctx, "e-1", core.PaymentDetails{PaidDate: testNow})
	assert.ErrorIs(t, err, core.ErrAlreadyPaid)

	_, err = repo.MarkEntryPaid(ctx, "missing", core.PaymentDetails{PaidDate: testNow})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLiteRepository_DeleteScheduleCascades(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveSchedule(ctx, testSchedule()))
	require.NoError(t, repo.CreateEntry(ctx, testEntry("e-1", "2024-01", core.NewDate(2024, 1, 31))))

	require.NoError(t, repo.DeleteSchedule(ctx, "sched-1"))

	_, err := repo.GetEntry(ctx, "e-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteSchedule(ctx, "sched-1"), core.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteEntry(ctx, "e-1"), core.ErrNotFound)
}

func TestSQLiteRepository_GenerationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	s := testSchedule()
	require.NoError(t, repo.SaveSchedule(ctx, s))
	gen := services.NewEntryGenerator(repo, repo)
	horizon := core.NewDate(2024, 6, 1)

	res, err := gen.Generate(ctx, s, horizon, testNow)
	require.NoError(t, err)
	assert.Equal(t, core.GenerationResult{Created: 6}, res)

	// A second process with no knowledge of the first run.
	fresh, err := repo.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	res, err = gen.Generate(ctx, fresh, horizon, testNow)
	require.NoError(t, err)
	assert.Equal(t, core.GenerationResult{Skipped: 6}, res)

	stored, err := repo.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", stored.NextDueDate.String())
}

func TestRunMigrations_ReportsVersionAndIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bollette.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	version, err := RunMigrations(DSN(path))
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}
