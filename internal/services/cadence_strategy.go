// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for billing cadences.
// Each frequency (monthly, quarterly, yearly) has its own strategy that knows
// how to map a date to its billing period, how to step to the next period
// and where inside a period the due date falls.

package services

import (
	"fmt"

	"bollette/internal/core"
)

// Cadence is the strategy interface for one billing frequency.
type Cadence interface {
	// Period returns the canonical key and the first day of the period that
	// contains d. Any two dates of the same period give the same result.
	Period(d core.Date) (key string, start core.Date)

	// Next returns the start of the period following the one starting at
	// periodStart. The result is always day 1 of a month.
	Next(periodStart core.Date) core.Date

	// DueDate resolves the due date of the period starting at periodStart.
	DueDate(periodStart core.Date, dayOfMonth int, startDate core.Date) core.Date
}

// MonthlyCadence bills once per calendar month.
type MonthlyCadence struct{}

func (MonthlyCadence) Period(d core.Date) (string, core.Date) {
	return fmt.Sprintf("%04d-%02d", d.Year(), d.Month()), d.FirstOfMonth()
}

func (MonthlyCadence) Next(periodStart core.Date) core.Date {
	return core.NewDate(periodStart.Year(), periodStart.Month()+1, 1)
}

// DueDate clamps dayOfMonth to the length of the period's month.
func (MonthlyCadence) DueDate(periodStart core.Date, dayOfMonth int, _ core.Date) core.Date {
	return core.ClampedDate(periodStart.Year(), periodStart.Month(), dayOfMonth)
}

// QuarterlyCadence bills once per calendar quarter.
type QuarterlyCadence struct{}

func (QuarterlyCadence) Period(d core.Date) (string, core.Date) {
	q := (d.Month() - 1) / 3
	return fmt.Sprintf("%04d-Q%d", d.Year(), q+1), core.NewDate(d.Year(), q*3+1, 1)
}

func (QuarterlyCadence) Next(periodStart core.Date) core.Date {
	return core.NewDate(periodStart.Year(), periodStart.Month()+3, 1)
}

// DueDate falls in the first month of the quarter, clamped like monthly.
func (QuarterlyCadence) DueDate(periodStart core.Date, dayOfMonth int, _ core.Date) core.Date {
	return core.ClampedDate(periodStart.Year(), periodStart.Month(), dayOfMonth)
}

// YearlyCadence bills once per calendar year.
type YearlyCadence struct{}

func (YearlyCadence) Period(d core.Date) (string, core.Date) {
	return fmt.Sprintf("%04d", d.Year()), core.NewDate(d.Year(), 1, 1)
}

func (YearlyCadence) Next(periodStart core.Date) core.Date {
	return core.NewDate(periodStart.Year()+1, 1, 1)
}

// DueDate keeps the anniversary of the schedule start (month and day of
// startDate), so Feb 29 becomes Feb 28 in non-leap years.
func (YearlyCadence) DueDate(periodStart core.Date, _ int, startDate core.Date) core.Date {
	return core.ClampedDate(periodStart.Year(), startDate.Month(), startDate.Day())
}

// cadenceStrategies maps frequencies to their strategies.
var cadenceStrategies = map[core.Frequency]Cadence{
	core.Monthly:   MonthlyCadence{},
	core.Quarterly: QuarterlyCadence{},
	core.Yearly:    YearlyCadence{},
}

// GetCadence returns the strategy for a frequency.
// Returns an error if the frequency is not supported.
func GetCadence(frequency core.Frequency) (Cadence, error) {
	c, ok := cadenceStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidFrequency, frequency)
	}
	return c, nil
}

// RegisterCadence registers a strategy for a new frequency.
func RegisterCadence(frequency core.Frequency, c Cadence) {
	cadenceStrategies[frequency] = c
}

// PeriodFor maps a date to its period key and period start.
func PeriodFor(frequency core.Frequency, d core.Date) (string, core.Date, error) {
	c, err := GetCadence(frequency)
	if err != nil {
		return "", core.Date{}, err
	}
	key, start := c.Period(d)
	return key, start, nil
}

// ResolveDueDate computes the due date of the period starting at periodStart.
func ResolveDueDate(frequency core.Frequency, periodStart core.Date, dayOfMonth int, startDate core.Date) (core.Date, error) {
	c, err := GetCadence(frequency)
	if err != nil {
		return core.Date{}, err
	}
	return c.DueDate(periodStart, dayOfMonth, startDate), nil
}

// projectNext returns the due date one cadence step after the period that
// contains from.
func projectNext(c Cadence, from core.Date, s *core.Schedule) core.Date {
	_, start := c.Period(from)
	return c.DueDate(c.Next(start), s.DayOfMonth, s.StartDate)
}
