package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bollette/internal/core"
)

// Ledger is an in-process ledger used when no spreadsheet is configured.
type Ledger struct {
	mu   sync.Mutex
	rows []core.LedgerTransaction
}

func New() *Ledger {
	return &Ledger{}
}

// AppendTransaction stores tx and returns a synthetic row reference.
func (l *Ledger) AppendTransaction(_ context.Context, tx core.LedgerTransaction) (string, error) {
	if tx.EntryID == "" {
		return "", errors.New("ledger transaction without entry id")
	}
	if !tx.Amount.IsPositive() {
		return "", core.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, tx)
	return fmt.Sprintf("mem:%d", len(l.rows)), nil
}

// Transactions returns a copy of the recorded transactions.
func (l *Ledger) Transactions() []core.LedgerTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.LedgerTransaction(nil), l.rows...)
}
