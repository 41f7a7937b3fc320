package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bollette/internal/core"
	applog "bollette/internal/log"
	"bollette/internal/services"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const timestampLayout = time.RFC3339Nano

// SQLiteRepository stores schedules and entries in a SQLite database. It
// implements services.ScheduleStore and services.EntryStore.
type SQLiteRepository struct {
	db *sql.DB
}

// DSN returns the connection string for the database file at dbPath with
// foreign keys enforced.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("SQLite billing store ready", "path", dbPath, "schema_version", version)

	return NewSQLiteRepositoryFromDB(db), nil
}

// NewSQLiteRepositoryFromDB wraps an already migrated database handle.
func NewSQLiteRepositoryFromDB(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const scheduleColumns = `id, name, vendor, category, amount, frequency, start_date, end_date,
	day_of_month, status, next_due_date, last_paid_date, created_at, updated_at`

func (r *SQLiteRepository) GetSchedule(ctx context.Context, id string) (*core.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) SaveSchedule(ctx context.Context, s *core.Schedule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			vendor = excluded.vendor,
			category = excluded.category,
			amount = excluded.amount,
			frequency = excluded.frequency,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			day_of_month = excluded.day_of_month,
			status = excluded.status,
			next_due_date = excluded.next_due_date,
			last_paid_date = excluded.last_paid_date,
			updated_at = excluded.updated_at`,
		s.ID, s.Name, s.Vendor, s.Category, s.Amount.StringFixed(2), string(s.Frequency),
		s.StartDate.String(), nullDate(s.EndDate), s.DayOfMonth, string(s.Status),
		nullDate(s.NextDueDate), nullTime(s.LastPaidDate),
		s.CreatedAt.UTC().Format(timestampLayout), s.UpdatedAt.UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes the schedule and its entries in one transaction.
func (r *SQLiteRepository) DeleteSchedule(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE schedule_id = ?`, id); err != nil {
		return fmt.Errorf("delete schedule entries: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListSchedules(ctx context.Context) ([]core.Schedule, error) {
	return r.listSchedules(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY name, id`)
}

func (r *SQLiteRepository) ListActiveSchedules(ctx context.Context) ([]core.Schedule, error) {
	return r.listSchedules(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE status = ? ORDER BY id`,
		string(core.ScheduleActive))
}

func (r *SQLiteRepository) listSchedules(ctx context.Context, query string, args ...any) ([]core.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []core.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return out, nil
}

const entryColumns = `id, schedule_id, period, amount, due_date, status, paid_date,
	payment_method, payment_reference, notes, paid_by, created_at`

func (r *SQLiteRepository) FindEntries(ctx context.Context, f services.EntryFilter) ([]core.Entry, error) {
	where, args := EntryWhere(f, QuestionPlaceholder, 0)
	rows, err := r.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries`+where+EntryOrderLimit(f), args...)
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

func (r *SQLiteRepository) GetEntry(ctx context.Context, id string) (*core.Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) CreateEntry(ctx context.Context, e *core.Entry) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ScheduleID, e.Period, e.Amount.StringFixed(2), e.DueDate.String(), string(e.Status),
		nullTime(e.PaidDate), e.PaymentMethod, e.PaymentReference, e.Notes, e.PaidBy,
		e.CreatedAt.UTC().Format(timestampLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicatePeriod
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("schedule %s: %w", e.ScheduleID, core.ErrNotFound)
		}
		return fmt.Errorf("insert entry: %w", err)
	}

	slog.DebugContext(ctx, "Entry saved to SQLite",
		applog.FieldEntryID, e.ID,
		applog.FieldScheduleID, e.ScheduleID,
		applog.FieldPeriod, e.Period)
	return nil
}

func (r *SQLiteRepository) UpdateEntryAmounts(ctx context.Context, f services.EntryFilter, amount decimal.Decimal) (int64, error) {
	where, args := EntryWhere(f, QuestionPlaceholder, 0)
	args = append([]any{amount.StringFixed(2)}, args...)
	res, err := r.db.ExecContext(ctx, `UPDATE entries SET amount = ?`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("update entry amounts: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) DeleteEntries(ctx context.Context, f services.EntryFilter) (int64, error) {
	where, args := EntryWhere(f, QuestionPlaceholder, 0)
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) DeleteEntry(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// MarkEntryPaid only updates an entry that is not paid yet, so concurrent
// payments of the same entry have a single winner.
func (r *SQLiteRepository) MarkEntryPaid(ctx context.Context, id string, p core.PaymentDetails) (*core.Entry, error) {
	paidDate := p.PaidDate
	res, err := r.db.ExecContext(ctx, `
		UPDATE entries
		SET status = ?, paid_date = ?, payment_method = ?, payment_reference = ?, notes = ?, paid_by = ?
		WHERE id = ? AND status <> ?`,
		string(core.EntryPaid), nullTime(&paidDate), p.Method, p.Reference, p.Notes, p.PaidBy,
		id, string(core.EntryPaid))
	if err != nil {
		return nil, fmt.Errorf("mark entry paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("mark entry paid: %w", err)
	}

	e, err := r.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, core.ErrAlreadyPaid
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*core.Schedule, error) {
	var (
		s                                core.Schedule
		amount, frequency, status, start string
		end, nextDue, lastPaid           sql.NullString
		createdAt, updatedAt             string
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Vendor, &s.Category, &amount, &frequency, &start, &end,
		&s.DayOfMonth, &status, &nextDue, &lastPaid, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if s.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	s.Frequency = core.Frequency(frequency)
	s.Status = core.ScheduleStatus(status)
	if s.StartDate, err = core.ParseDate(start); err != nil {
		return nil, err
	}
	if s.EndDate, err = parseNullDate(end); err != nil {
		return nil, err
	}
	if s.NextDueDate, err = parseNullDate(nextDue); err != nil {
		return nil, err
	}
	if s.LastPaidDate, err = parseNullTime(lastPaid); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(timestampLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &s, nil
}

func scanEntry(row rowScanner) (*core.Entry, error) {
	var (
		e                   core.Entry
		amount, due, status string
		paid                sql.NullString
		createdAt           string
	)
	if err := row.Scan(&e.ID, &e.ScheduleID, &e.Period, &amount, &due, &status, &paid,
		&e.PaymentMethod, &e.PaymentReference, &e.Notes, &e.PaidBy, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if e.DueDate, err = core.ParseDate(due); err != nil {
		return nil, err
	}
	e.Status = core.EntryStatus(status)
	if e.PaidDate, err = parseNullTime(paid); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &e, nil
}

func nullDate(d core.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timestampLayout), Valid: true}
}

func parseNullDate(s sql.NullString) (core.Date, error) {
	if !s.Valid || s.String == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s.String)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timestampLayout, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", s.String, err)
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
