package sheets

import (
	"context"

	"bollette/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter appends paid entries to the external ledger.
	LedgerWriter interface {
		AppendTransaction(ctx context.Context, tx core.LedgerTransaction) (rowRef string, err error)
	}
)
