package wallet

import (
	"context"
	"errors"

	"github.com/taka-pay/taka_pay/internal/ledger"
)

// ErrNotPending occurs when approval is requested for a wallet that is not
// awaiting it.
var ErrNotPending = errors.New("wallet is not pending approval")

// Service exposes wallet lifecycle and read operations backed by the ledger
// store. Balance mutation stays with the transfer engine; this service only
// provisions entries, reads them and flips administrative status.
type Service struct {
	store          ledger.Store
	openingBalance int64
}

// NewService builds a wallet service. openingBalance is credited once when a
// wallet is provisioned.
func NewService(store ledger.Store, openingBalance int64) *Service {
	return &Service{store: store, openingBalance: openingBalance}
}

// Provision creates the single ledger entry for an owner with the configured
// opening balance. Agent wallets start pending until approved.
func (s *Service) Provision(ctx context.Context, ownerID string, agent bool) (ledger.Entry, error) {
	status := ledger.StatusActive
	if agent {
		status = ledger.StatusPending
	}
	return s.store.CreateEntry(ctx, ownerID, s.openingBalance, status)
}

// Get returns the ledger entry for an owner.
func (s *Service) Get(ctx context.Context, ownerID string) (ledger.Entry, error) {
	return s.store.Entry(ctx, ownerID)
}

// ToggleBlock flips a wallet between active and blocked. Pending agent
// wallets are activated by Approve, not here.
func (s *Service) ToggleBlock(ctx context.Context, ownerID string) (ledger.Entry, error) {
	entry, err := s.store.Entry(ctx, ownerID)
	if err != nil {
		return ledger.Entry{}, err
	}
	status := ledger.StatusBlocked
	if entry.Status == ledger.StatusBlocked {
		status = ledger.StatusActive
	}
	return s.store.SetStatus(ctx, ownerID, status)
}

// Approve activates a pending agent wallet. Any other status is rejected so
// approval can never double as an unblock.
func (s *Service) Approve(ctx context.Context, ownerID string) (ledger.Entry, error) {
	entry, err := s.store.Entry(ctx, ownerID)
	if err != nil {
		return ledger.Entry{}, err
	}
	if entry.Status != ledger.StatusPending {
		return ledger.Entry{}, ErrNotPending
	}
	return s.store.SetStatus(ctx, ownerID, ledger.StatusActive)
}

// Transactions lists the owner's transaction history, newest first.
func (s *Service) Transactions(ctx context.Context, ownerID string) ([]ledger.Transaction, error) {
	return s.store.TransactionsFor(ctx, ownerID)
}
