package storage

import (
	"fmt"
	"strings"

	"bollette/internal/services"
)

// Placeholder renders the n-th (1-based) bind parameter of a dialect.
type Placeholder func(n int) string

// QuestionPlaceholder is the SQLite bind style.
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder is the Postgres bind style.
func DollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// EntryWhere renders the WHERE clause selecting the entries of f. Bind
// parameters start at offset+1.
func EntryWhere(f services.EntryFilter, ph Placeholder, offset int) (string, []any) {
	args := []any{f.ScheduleID}
	clause := "schedule_id = " + ph(offset+1)
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			args = append(args, string(st))
			marks[i] = ph(offset + len(args))
		}
		clause += " AND status IN (" + strings.Join(marks, ", ") + ")"
	}
	return " WHERE " + clause, args
}

// EntryOrderLimit renders the ORDER BY and LIMIT suffix of f.
func EntryOrderLimit(f services.EntryFilter) string {
	dir := "ASC"
	if f.Order == services.OrderDueDesc {
		dir = "DESC"
	}
	suffix := fmt.Sprintf(" ORDER BY due_date %s, period %s", dir, dir)
	if f.Limit > 0 {
		suffix += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	return suffix
}
