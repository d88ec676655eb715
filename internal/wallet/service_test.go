package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/taka-pay/taka_pay/internal/ledger"
)

func TestProvisionAndGet(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, 5_000)
	ctx := context.Background()

	entry, err := svc.Provision(ctx, "user-1", false)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if entry.Balance != 5_000 || entry.Status != ledger.StatusActive {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	fetched, err := svc.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.OwnerID != "user-1" || fetched.Balance != 5_000 {
		t.Fatalf("unexpected fetched entry: %+v", fetched)
	}

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProvisionAgentStartsPending(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, 0)
	ctx := context.Background()

	entry, err := svc.Provision(ctx, "agent-1", true)
	if err != nil {
		t.Fatalf("provision agent: %v", err)
	}
	if entry.Status != ledger.StatusPending {
		t.Fatalf("expected pending agent, got %s", entry.Status)
	}

	approved, err := svc.Approve(ctx, "agent-1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != ledger.StatusActive {
		t.Fatalf("expected active after approval, got %s", approved.Status)
	}
}

func TestApproveRejectsNonPendingWallets(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, 0)
	ctx := context.Background()

	if _, err := svc.Provision(ctx, "user-1", false); err != nil {
		t.Fatalf("provision: %v", err)
	}

	// An active wallet has nothing to approve.
	if _, err := svc.Approve(ctx, "user-1"); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected not pending, got %v", err)
	}

	// Approval must not double as an unblock.
	if _, err := svc.ToggleBlock(ctx, "user-1"); err != nil {
		t.Fatalf("block: %v", err)
	}
	if _, err := svc.Approve(ctx, "user-1"); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected not pending for blocked wallet, got %v", err)
	}
	entry, err := svc.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Status != ledger.StatusBlocked {
		t.Fatalf("approval unblocked the wallet: %s", entry.Status)
	}

	if _, err := svc.Approve(ctx, "ghost"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestToggleBlock(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, 100)
	ctx := context.Background()

	if _, err := svc.Provision(ctx, "user-1", false); err != nil {
		t.Fatalf("provision: %v", err)
	}

	blocked, err := svc.ToggleBlock(ctx, "user-1")
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	if blocked.Status != ledger.StatusBlocked {
		t.Fatalf("expected blocked, got %s", blocked.Status)
	}

	unblocked, err := svc.ToggleBlock(ctx, "user-1")
	if err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if unblocked.Status != ledger.StatusActive {
		t.Fatalf("expected active, got %s", unblocked.Status)
	}
	// Balance survives status flips.
	if unblocked.Balance != 100 {
		t.Fatalf("status flip changed balance: %d", unblocked.Balance)
	}
}
