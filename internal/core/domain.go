package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

const (
	ScheduleActive   ScheduleStatus = "active"
	ScheduleInactive ScheduleStatus = "inactive"
	SchedulePaused   ScheduleStatus = "paused"
)

const (
	EntryPending EntryStatus = "pending"
	EntryOverdue EntryStatus = "overdue"
	EntryPaid    EntryStatus = "paid"
)

type (
	Frequency      string
	ScheduleStatus string
	EntryStatus    string

	// Schedule is a recurring expense definition. NextDueDate and LastPaidDate
	// are bookkeeping caches derived from its entries.
	Schedule struct {
		ID           string
		Name         string
		Vendor       string
		Category     string
		Amount       decimal.Decimal
		Frequency    Frequency
		StartDate    Date
		EndDate      Date // zero means open ended
		DayOfMonth   int
		Status       ScheduleStatus
		NextDueDate  Date
		LastPaidDate *time.Time
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// Entry is one materialized billing obligation of a schedule.
	Entry struct {
		ID               string
		ScheduleID       string
		Period           string
		Amount           decimal.Decimal
		DueDate          Date
		Status           EntryStatus
		PaidDate         *time.Time
		PaymentMethod    string
		PaymentReference string
		Notes            string
		PaidBy           string
		CreatedAt        time.Time
	}

	// PaymentDetails is the caller supplied part of a paid transition.
	// A zero PaidDate means "now".
	PaymentDetails struct {
		PaidDate  time.Time
		Method    string
		Reference string
		Notes     string
		PaidBy    string
	}

	// LedgerTransaction is the outgoing transaction recorded in the external
	// ledger once an entry is paid.
	LedgerTransaction struct {
		EntryID       string
		ScheduleID    string
		Amount        decimal.Decimal
		Category      string
		Date          time.Time
		Vendor        string
		PaymentMethod string
		Description   string
		Metadata      map[string]string
	}

	// GenerationResult summarizes one generation run.
	GenerationResult struct {
		Created int
		Skipped int
	}
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicatePeriod   = errors.New("duplicate period for schedule")
	ErrAlreadyPaid       = errors.New("entry already paid")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidFrequency  = errors.New("invalid frequency")
	ErrInvalidDayOfMonth = errors.New("day of month must be between 1 and 31")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrEndBeforeStart    = errors.New("end date must not be before start date")
	ErrEmptyName         = errors.New("empty name")
)

// UnpaidStatuses are the entry states that still count as open obligations.
var UnpaidStatuses = []EntryStatus{EntryPending, EntryOverdue}

func (f Frequency) Valid() bool {
	switch f {
	case Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

func (s ScheduleStatus) Valid() bool {
	switch s {
	case ScheduleActive, ScheduleInactive, SchedulePaused:
		return true
	}
	return false
}

func (s EntryStatus) Valid() bool {
	switch s {
	case EntryPending, EntryOverdue, EntryPaid:
		return true
	}
	return false
}

// IsActive reports whether the schedule generates entries.
func (s *Schedule) IsActive() bool {
	return s.Status == ScheduleActive
}

// HasEnd reports whether the schedule has a billing window end.
func (s *Schedule) HasEnd() bool {
	return !s.EndDate.IsZero()
}

func (s *Schedule) Validate() error {
	if len(strings.TrimSpace(s.Name)) == 0 {
		return ErrEmptyName
	}
	if len(s.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if !s.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !s.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if !s.Status.Valid() {
		return ErrInvalidStatus
	}
	if s.StartDate.IsZero() {
		return fmt.Errorf("invalid start date: %w", ErrInvalidDate)
	}
	if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
		return ErrInvalidDayOfMonth
	}
	if s.HasEnd() && s.EndDate.Before(s.StartDate) {
		return ErrEndBeforeStart
	}
	return nil
}

// IsPaid reports whether the entry has been settled.
func (e *Entry) IsPaid() bool {
	return e.Status == EntryPaid
}

// EffectiveStatus derives the read-time status: a pending entry whose due
// date is before today counts as overdue.
func (e *Entry) EffectiveStatus(now time.Time) EntryStatus {
	if e.Status == EntryPending && e.DueDate.Before(DateOf(now)) {
		return EntryOverdue
	}
	return e.Status
}

// InitialStatus is the status a freshly generated entry gets.
func InitialStatus(due Date, now time.Time) EntryStatus {
	if due.Before(DateOf(now)) {
		return EntryOverdue
	}
	return EntryPending
}
