// Package memory provides an in-process store for schedules and entries.
// It enforces the same period uniqueness and cascade rules as the SQL stores.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"bollette/internal/core"
	"bollette/internal/services"

	"github.com/shopspring/decimal"
)

type Store struct {
	mu        sync.Mutex
	schedules map[string]core.Schedule
	entries   map[string]core.Entry
	// periods indexes entry ids by schedule id and period key.
	periods map[string]map[string]string
}

func New() *Store {
	return &Store{
		schedules: map[string]core.Schedule{},
		entries:   map[string]core.Entry{},
		periods:   map[string]map[string]string{},
	}
}

func (s *Store) GetSchedule(_ context.Context, id string) (*core.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &sched, nil
}

func (s *Store) SaveSchedule(_ context.Context, sched *core.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.ID] = *sched
	return nil
}

func (s *Store) DeleteSchedule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.schedules, id)
	for _, entryID := range s.periods[id] {
		delete(s.entries, entryID)
	}
	delete(s.periods, id)
	return nil
}

func (s *Store) ListSchedules(_ context.Context) ([]core.Schedule, error) {
	return s.listSchedules(func(core.Schedule) bool { return true }), nil
}

func (s *Store) ListActiveSchedules(_ context.Context) ([]core.Schedule, error) {
	return s.listSchedules(func(sc core.Schedule) bool { return sc.IsActive() }), nil
}

func (s *Store) listSchedules(keep func(core.Schedule) bool) []core.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Schedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		if keep(sc) {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) FindEntries(_ context.Context, f services.EntryFilter) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.matching(f)
	// Same ordering as storage.EntryOrderLimit: due date, then period, both
	// in the requested direction.
	desc := f.Order == services.OrderDueDesc
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].DueDate, out[j].DueDate
		if a.Equal(b) {
			if desc {
				return out[i].Period > out[j].Period
			}
			return out[i].Period < out[j].Period
		}
		if desc {
			return a.After(b)
		}
		return a.Before(b)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) GetEntry(_ context.Context, id string) (*core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &e, nil
}

func (s *Store) CreateEntry(_ context.Context, e *core.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[e.ScheduleID]; !ok {
		return core.ErrNotFound
	}
	byPeriod := s.periods[e.ScheduleID]
	if byPeriod == nil {
		byPeriod = map[string]string{}
		s.periods[e.ScheduleID] = byPeriod
	}
	if _, ok := byPeriod[e.Period]; ok {
		return core.ErrDuplicatePeriod
	}
	byPeriod[e.Period] = e.ID
	s.entries[e.ID] = *e
	return nil
}

func (s *Store) UpdateEntryAmounts(_ context.Context, f services.EntryFilter, amount decimal.Decimal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.matching(f) {
		e.Amount = amount
		s.entries[e.ID] = e
		n++
	}
	return n, nil
}

func (s *Store) DeleteEntries(_ context.Context, f services.EntryFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.matching(f) {
		s.deleteEntry(e)
		n++
	}
	return n, nil
}

func (s *Store) DeleteEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return core.ErrNotFound
	}
	s.deleteEntry(e)
	return nil
}

func (s *Store) MarkEntryPaid(_ context.Context, id string, p core.PaymentDetails) (*core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	if e.IsPaid() {
		return nil, core.ErrAlreadyPaid
	}
	paidDate := p.PaidDate
	e.Status = core.EntryPaid
	e.PaidDate = &paidDate
	e.PaymentMethod = p.Method
	e.PaymentReference = p.Reference
	e.Notes = p.Notes
	e.PaidBy = p.PaidBy
	s.entries[id] = e
	return &e, nil
}

// matching must be called with s.mu held.
func (s *Store) matching(f services.EntryFilter) []core.Entry {
	var out []core.Entry
	for _, id := range s.periods[f.ScheduleID] {
		e := s.entries[id]
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, e.Status) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// deleteEntry must be called with s.mu held.
func (s *Store) deleteEntry(e core.Entry) {
	delete(s.entries, e.ID)
	if byPeriod := s.periods[e.ScheduleID]; byPeriod != nil {
		delete(byPeriod, e.Period)
	}
}
