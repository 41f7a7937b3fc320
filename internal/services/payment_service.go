package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bollette/internal/core"
	applog "bollette/internal/log"
)

// DefaultLedgerCategory is used when a schedule has no category of its own.
const DefaultLedgerCategory = "Recurring expenses"

// PaymentService moves entries to paid and keeps the owning schedule's
// bookkeeping and the external ledger in step.
type PaymentService struct {
	entries   EntryStore
	schedules ScheduleStore
	nextDue   *NextDueCalculator
	notifier  LedgerNotifier
}

// NewPaymentService creates a payment service. notifier may be nil, in which
// case no ledger transaction is recorded.
func NewPaymentService(entries EntryStore, schedules ScheduleStore, notifier LedgerNotifier) *PaymentService {
	return &PaymentService{
		entries:   entries,
		schedules: schedules,
		nextDue:   NewNextDueCalculator(entries),
		notifier:  notifier,
	}
}

// MarkPaid settles the entry. It returns core.ErrAlreadyPaid if the entry
// was paid before, without changing anything. Once the paid state is
// committed it is never reverted: a bookkeeping failure is returned together
// with the paid entry, and a ledger failure is only logged.
func (s *PaymentService) MarkPaid(ctx context.Context, entryID string, details core.PaymentDetails, now time.Time) (*core.Entry, error) {
	entry, err := s.entries.GetEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", entryID, err)
	}
	if entry.IsPaid() {
		return nil, core.ErrAlreadyPaid
	}

	sched, err := s.schedules.GetSchedule(ctx, entry.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("get schedule %s: %w", entry.ScheduleID, err)
	}

	if details.PaidDate.IsZero() {
		details.PaidDate = now
	}
	paid, err := s.entries.MarkEntryPaid(ctx, entryID, details)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Entry marked as paid",
		applog.FieldEntryID, paid.ID,
		applog.FieldScheduleID, paid.ScheduleID,
		applog.FieldPeriod, paid.Period,
		applog.FieldAmount, paid.Amount.String())

	bookErr := s.updateBookkeeping(ctx, sched, details.PaidDate, now)

	s.notifyLedger(ctx, sched, paid)

	if bookErr != nil {
		return paid, bookErr
	}
	return paid, nil
}

func (s *PaymentService) updateBookkeeping(ctx context.Context, sched *core.Schedule, paidDate, now time.Time) error {
	next, err := s.nextDue.Recompute(ctx, sched)
	if err != nil {
		return fmt.Errorf("recompute next due date: %w", err)
	}
	sched.NextDueDate = next
	sched.LastPaidDate = &paidDate
	sched.UpdatedAt = now
	if err := s.schedules.SaveSchedule(ctx, sched); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

func (s *PaymentService) notifyLedger(ctx context.Context, sched *core.Schedule, paid *core.Entry) {
	if s.notifier == nil {
		slog.WarnContext(ctx, "Ledger notifier not available, skipping ledger transaction",
			applog.FieldEntryID, paid.ID)
		return
	}

	if err := s.notifier.RecordOutgoingTransaction(ctx, LedgerTransactionFor(sched, paid)); err != nil {
		// Don't fail the payment - it is already committed
		slog.ErrorContext(ctx, "Failed to record ledger transaction",
			applog.FieldEntryID, paid.ID,
			applog.FieldScheduleID, sched.ID,
			applog.FieldError, err)
	}
}

// LedgerTransactionFor builds the outgoing ledger transaction of a paid entry.
func LedgerTransactionFor(sched *core.Schedule, paid *core.Entry) core.LedgerTransaction {
	category := sched.Category
	if category == "" {
		category = DefaultLedgerCategory
	}
	var date time.Time
	if paid.PaidDate != nil {
		date = *paid.PaidDate
	}
	return core.LedgerTransaction{
		EntryID:       paid.ID,
		ScheduleID:    sched.ID,
		Amount:        paid.Amount,
		Category:      category,
		Date:          date,
		Vendor:        sched.Vendor,
		PaymentMethod: paid.PaymentMethod,
		Description:   fmt.Sprintf("%s (%s)", sched.Name, paid.Period),
		Metadata: map[string]string{
			"schedule_id":       sched.ID,
			"entry_id":          paid.ID,
			"period":            paid.Period,
			"due_date":          paid.DueDate.String(),
			"payment_reference": paid.PaymentReference,
		},
	}
}
