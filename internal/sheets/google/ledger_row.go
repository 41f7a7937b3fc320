package google

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bollette/internal/core"
)

// Ledger sheet columns, A to J.
var ledgerHeader = []string{
	"Date", "Description", "Amount", "Category", "Vendor",
	"Payment method", "Reference", "Period", "Entry", "Schedule",
}

// ledgerRow renders tx in ledgerHeader order. The amount is written as a
// plain number so the sheet can sum it.
func ledgerRow(tx core.LedgerTransaction) []any {
	return []any{
		tx.Date.Format(core.DateLayout),
		tx.Description,
		tx.Amount.StringFixed(2),
		tx.Category,
		tx.Vendor,
		tx.PaymentMethod,
		tx.Metadata["payment_reference"],
		tx.Metadata["period"],
		tx.EntryID,
		tx.ScheduleID,
	}
}

func validateTransaction(tx core.LedgerTransaction) error {
	if strings.TrimSpace(tx.EntryID) == "" {
		return errors.New("missing entry id")
	}
	if !tx.Amount.IsPositive() {
		return core.ErrInvalidAmount
	}
	if tx.Date.IsZero() {
		return fmt.Errorf("missing payment date: %w", core.ErrInvalidDate)
	}
	return nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with
// a year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
