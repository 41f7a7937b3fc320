package main

import (
	"time"

	"bollette/internal/core"
)

type scheduleView struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Vendor       string     `json:"vendor,omitempty"`
	Category     string     `json:"category"`
	Amount       string     `json:"amount"`
	Frequency    string     `json:"frequency"`
	StartDate    core.Date  `json:"start_date"`
	EndDate      *core.Date `json:"end_date,omitempty"`
	DayOfMonth   int        `json:"day_of_month"`
	Status       string     `json:"status"`
	NextDueDate  core.Date  `json:"next_due_date"`
	LastPaidDate *time.Time `json:"last_paid_date,omitempty"`
}

func newScheduleView(s *core.Schedule) scheduleView {
	v := scheduleView{
		ID:           s.ID,
		Name:         s.Name,
		Vendor:       s.Vendor,
		Category:     s.Category,
		Amount:       s.Amount.StringFixed(2),
		Frequency:    string(s.Frequency),
		StartDate:    s.StartDate,
		DayOfMonth:   s.DayOfMonth,
		Status:       string(s.Status),
		NextDueDate:  s.NextDueDate,
		LastPaidDate: s.LastPaidDate,
	}
	if s.HasEnd() {
		end := s.EndDate
		v.EndDate = &end
	}
	return v
}

type entryView struct {
	ID               string           `json:"id"`
	ScheduleID       string           `json:"schedule_id"`
	Period           string           `json:"period"`
	Amount           string           `json:"amount"`
	DueDate          core.Date        `json:"due_date"`
	Status           core.EntryStatus `json:"status"`
	PaidDate         *time.Time       `json:"paid_date,omitempty"`
	PaymentMethod    string           `json:"payment_method,omitempty"`
	PaymentReference string           `json:"payment_reference,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	PaidBy           string           `json:"paid_by,omitempty"`
}

func newEntryView(e *core.Entry) entryView {
	return entryView{
		ID:               e.ID,
		ScheduleID:       e.ScheduleID,
		Period:           e.Period,
		Amount:           e.Amount.StringFixed(2),
		DueDate:          e.DueDate,
		Status:           e.Status,
		PaidDate:         e.PaidDate,
		PaymentMethod:    e.PaymentMethod,
		PaymentReference: e.PaymentReference,
		Notes:            e.Notes,
		PaidBy:           e.PaidBy,
	}
}

type generationView struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

func newGenerationView(g core.GenerationResult) generationView {
	return generationView{Created: g.Created, Skipped: g.Skipped}
}
