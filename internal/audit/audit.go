package audit

import (
	"context"

	"github.com/taka-pay/taka_pay/internal/ledger"
)

// Archiver persists snapshots of committed transactions to a secondary store
// for offline reconciliation. Archiving happens after the atomic unit has
// committed and is best effort; the ledger remains the source of truth.
type Archiver interface {
	Archive(ctx context.Context, txn ledger.Transaction) error
}

// Nop is an Archiver that discards everything.
type Nop struct{}

// Archive does nothing.
func (Nop) Archive(_ context.Context, _ ledger.Transaction) error { return nil }
