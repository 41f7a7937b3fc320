package services

import (
	"context"

	"bollette/internal/core"

	"github.com/shopspring/decimal"
)

// EntryOrder selects the due-date ordering of FindEntries.
type EntryOrder int

const (
	OrderDueAsc EntryOrder = iota
	OrderDueDesc
)

// EntryFilter selects entries of one schedule. Empty Statuses matches every
// status; Limit <= 0 means no limit.
type EntryFilter struct {
	ScheduleID string
	Statuses   []core.EntryStatus
	Order      EntryOrder
	Limit      int
}

// Ports for the persistence and notification collaborators of the engine.
type (
	EntryStore interface {
		// FindEntries returns the entries matching f, sorted by due date.
		FindEntries(ctx context.Context, f EntryFilter) ([]core.Entry, error)
		GetEntry(ctx context.Context, id string) (*core.Entry, error)
		// CreateEntry persists e. It returns core.ErrDuplicatePeriod when the
		// schedule already has an entry for e.Period.
		CreateEntry(ctx context.Context, e *core.Entry) error
		UpdateEntryAmounts(ctx context.Context, f EntryFilter, amount decimal.Decimal) (int64, error)
		DeleteEntries(ctx context.Context, f EntryFilter) (int64, error)
		DeleteEntry(ctx context.Context, id string) error
		// MarkEntryPaid performs the paid transition only if the entry is not
		// paid yet, returning core.ErrAlreadyPaid otherwise.
		MarkEntryPaid(ctx context.Context, id string, p core.PaymentDetails) (*core.Entry, error)
	}

	ScheduleStore interface {
		GetSchedule(ctx context.Context, id string) (*core.Schedule, error)
		SaveSchedule(ctx context.Context, s *core.Schedule) error
		// DeleteSchedule removes the schedule and all of its entries.
		DeleteSchedule(ctx context.Context, id string) error
		ListSchedules(ctx context.Context) ([]core.Schedule, error)
		ListActiveSchedules(ctx context.Context) ([]core.Schedule, error)
	}

	// LedgerNotifier records paid entries as outgoing transactions in the
	// external ledger.
	LedgerNotifier interface {
		RecordOutgoingTransaction(ctx context.Context, tx core.LedgerTransaction) error
	}
)
