package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bollette/internal/amqp"
	"bollette/internal/cache"
	"bollette/internal/core"
	applog "bollette/internal/log"
	"bollette/internal/sheets"
)

// DefaultDedupeTTL is how long a written entry is remembered.
const DefaultDedupeTTL = 24 * time.Hour

// DedupeCacheSize bounds how many written entries are remembered.
const DedupeCacheSize = 10000

// LedgerWorker writes ledger transactions consumed from AMQP to the ledger.
// A redelivered message for an entry already written is acknowledged
// without writing it again.
type LedgerWorker struct {
	ledger sheets.LedgerWriter
	seen   cache.Cache[string]
	logger *slog.Logger
}

// NewLedgerWorker creates a worker that remembers written entries for ttl.
func NewLedgerWorker(ledger sheets.LedgerWriter, ttl time.Duration) *LedgerWorker {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return NewLedgerWorkerWithCache(ledger, cache.NewLRUCache[string](DedupeCacheSize, ttl))
}

func NewLedgerWorkerWithCache(ledger sheets.LedgerWriter, seen cache.Cache[string]) *LedgerWorker {
	return &LedgerWorker{
		ledger: ledger,
		seen:   seen,
		logger: slog.Default().With(applog.FieldComponent, applog.ComponentWorker),
	}
}

// HandleLedgerMessage is the amqp.LedgerHandler of the ledger worker. A
// returned error makes the broker redeliver the message.
func (w *LedgerWorker) HandleLedgerMessage(ctx context.Context, msg *amqp.LedgerTransactionMessage) error {
	tx, err := msg.Transaction()
	if err == nil && !tx.Amount.IsPositive() {
		err = fmt.Errorf("%w: %s", core.ErrInvalidAmount, msg.Amount)
	}
	if err != nil {
		// Redelivery cannot fix a bad amount.
		w.logger.ErrorContext(ctx, "Dropping invalid ledger transaction",
			applog.FieldEntryID, msg.EntryID,
			applog.FieldError, err)
		return nil
	}
	return w.Process(ctx, tx)
}

// Process appends tx unless its entry was already written.
func (w *LedgerWorker) Process(ctx context.Context, tx core.LedgerTransaction) error {
	if tx.EntryID == "" {
		return errors.New("ledger transaction without entry id")
	}

	// Claim first so concurrent deliveries of one entry write a single row.
	if !w.seen.Claim(tx.EntryID, "") {
		ref, _ := w.seen.Get(tx.EntryID)
		w.logger.InfoContext(ctx, "Ledger transaction already written, skipping",
			applog.FieldEntryID, tx.EntryID,
			applog.FieldSheetsRef, ref)
		return nil
	}

	start := time.Now()
	ref, err := w.ledger.AppendTransaction(ctx, tx)
	if err != nil {
		w.seen.Delete(tx.EntryID)
		return fmt.Errorf("append ledger transaction %s: %w", tx.EntryID, err)
	}
	w.seen.Set(tx.EntryID, ref)

	w.logger.InfoContext(ctx, "Ledger transaction written",
		applog.FieldEntryID, tx.EntryID,
		applog.FieldScheduleID, tx.ScheduleID,
		applog.FieldAmount, tx.Amount.StringFixed(2),
		applog.FieldSheetsRef, ref,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return nil
}
