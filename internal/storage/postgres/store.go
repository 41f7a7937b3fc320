// Package postgres stores schedules and entries in PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bollette/internal/core"
	applog "bollette/internal/log"
	"bollette/internal/services"
	"bollette/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store implements services.ScheduleStore and services.EntryStore.
type Store struct {
	pool *pgxpool.Pool
}

// Open migrates the database at databaseURL and connects a pool to it.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const scheduleColumns = `id, name, vendor, category, amount::text, frequency, start_date, end_date,
	day_of_month, status, next_due_date, last_paid_date, created_at, updated_at`

func (s *Store) GetSchedule(ctx context.Context, id string) (*core.Schedule, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	sched, err := scanSchedule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return sched, nil
}

func (s *Store) SaveSchedule(ctx context.Context, sched *core.Schedule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO schedules (id, name, vendor, category, amount, frequency, start_date, end_date,
			day_of_month, status, next_due_date, last_paid_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			vendor = EXCLUDED.vendor,
			category = EXCLUDED.category,
			amount = EXCLUDED.amount,
			frequency = EXCLUDED.frequency,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			day_of_month = EXCLUDED.day_of_month,
			status = EXCLUDED.status,
			next_due_date = EXCLUDED.next_due_date,
			last_paid_date = EXCLUDED.last_paid_date,
			updated_at = EXCLUDED.updated_at`,
		sched.ID, sched.Name, sched.Vendor, sched.Category, sched.Amount.StringFixed(2),
		string(sched.Frequency), sched.StartDate.Time, dateArg(sched.EndDate), sched.DayOfMonth,
		string(sched.Status), dateArg(sched.NextDueDate), sched.LastPaidDate,
		sched.CreatedAt, sched.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

// DeleteSchedule relies on ON DELETE CASCADE for the entries.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) ListSchedules(ctx context.Context) ([]core.Schedule, error) {
	return s.listSchedules(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY name, id`)
}

func (s *Store) ListActiveSchedules(ctx context.Context) ([]core.Schedule, error) {
	return s.listSchedules(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE status = $1 ORDER BY id`,
		string(core.ScheduleActive))
}

func (s *Store) listSchedules(ctx context.Context, query string, args ...any) ([]core.Schedule, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []core.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, *sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return out, nil
}

const entryColumns = `id, schedule_id, period, amount::text, due_date, status, paid_date,
	payment_method, payment_reference, notes, paid_by, created_at`

func (s *Store) FindEntries(ctx context.Context, f services.EntryFilter) ([]core.Entry, error) {
	where, args := storage.EntryWhere(f, storage.DollarPlaceholder, 0)
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM entries`+where+storage.EntryOrderLimit(f), args...)
	if err != nil {
		return nil, fmt.Errorf("find entries: %w", err)
	}
	defer rows.Close()

	var out []core.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (*core.Entry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func (s *Store) CreateEntry(ctx context.Context, e *core.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO entries (id, schedule_id, period, amount, due_date, status, paid_date,
			payment_method, payment_reference, notes, paid_by, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.ScheduleID, e.Period, e.Amount.StringFixed(2), e.DueDate.Time, string(e.Status),
		e.PaidDate, e.PaymentMethod, e.PaymentReference, e.Notes, e.PaidBy, e.CreatedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case uniqueViolation:
			return core.ErrDuplicatePeriod
		case foreignKeyViolation:
			return fmt.Errorf("schedule %s: %w", e.ScheduleID, core.ErrNotFound)
		}
		return fmt.Errorf("insert entry: %w", err)
	}

	slog.DebugContext(ctx, "Entry saved to Postgres",
		applog.FieldEntryID, e.ID,
		applog.FieldScheduleID, e.ScheduleID,
		applog.FieldPeriod, e.Period)
	return nil
}

func (s *Store) UpdateEntryAmounts(ctx context.Context, f services.EntryFilter, amount decimal.Decimal) (int64, error) {
	where, args := storage.EntryWhere(f, storage.DollarPlaceholder, 1)
	args = append([]any{amount.StringFixed(2)}, args...)
	tag, err := s.pool.Exec(ctx, `UPDATE entries SET amount = $1::numeric`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("update entry amounts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteEntries(ctx context.Context, f services.EntryFilter) (int64, error) {
	where, args := storage.EntryWhere(f, storage.DollarPlaceholder, 0)
	tag, err := s.pool.Exec(ctx, `DELETE FROM entries`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// MarkEntryPaid only updates an entry that is not paid yet.
func (s *Store) MarkEntryPaid(ctx context.Context, id string, p core.PaymentDetails) (*core.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE entries
		SET status = $1, paid_date = $2, payment_method = $3, payment_reference = $4, notes = $5, paid_by = $6
		WHERE id = $7 AND status <> $1
		RETURNING `+entryColumns,
		string(core.EntryPaid), p.PaidDate, p.Method, p.Reference, p.Notes, p.PaidBy, id)
	e, err := scanEntry(row)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mark entry paid: %w", err)
	}

	// Nothing updated: either unknown or already paid.
	if _, err := s.GetEntry(ctx, id); err != nil {
		return nil, err
	}
	return nil, core.ErrAlreadyPaid
}

func scanSchedule(row pgx.Row) (*core.Schedule, error) {
	var (
		sched             core.Schedule
		amount            string
		frequency, status string
		start             time.Time
		end, nextDue      *time.Time
	)
	if err := row.Scan(&sched.ID, &sched.Name, &sched.Vendor, &sched.Category, &amount, &frequency,
		&start, &end, &sched.DayOfMonth, &status, &nextDue, &sched.LastPaidDate,
		&sched.CreatedAt, &sched.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if sched.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	sched.Frequency = core.Frequency(frequency)
	sched.Status = core.ScheduleStatus(status)
	sched.StartDate = core.DateOf(start)
	sched.EndDate = dateOf(end)
	sched.NextDueDate = dateOf(nextDue)
	return &sched, nil
}

func scanEntry(row pgx.Row) (*core.Entry, error) {
	var (
		e      core.Entry
		amount string
		status string
		due    time.Time
	)
	if err := row.Scan(&e.ID, &e.ScheduleID, &e.Period, &amount, &due, &status, &e.PaidDate,
		&e.PaymentMethod, &e.PaymentReference, &e.Notes, &e.PaidBy, &e.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	e.DueDate = core.DateOf(due)
	e.Status = core.EntryStatus(status)
	return &e, nil
}

func dateArg(d core.Date) *time.Time {
	if d.IsZero() {
		return nil
	}
	return &d.Time
}

func dateOf(t *time.Time) core.Date {
	if t == nil {
		return core.Date{}
	}
	return core.DateOf(*t)
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
