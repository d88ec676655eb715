package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound occurs when no ledger entry exists for the requested owner.
	ErrNotFound = errors.New("wallet not found")

	// ErrInsufficientFunds occurs when a debit would push a balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount occurs when an operation is requested with a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be greater than 0")

	// ErrWalletBlocked occurs when an operation touches a blocked wallet.
	ErrWalletBlocked = errors.New("wallet is blocked")

	// ErrAgentNotApproved occurs when a pending agent attempts an agent operation.
	ErrAgentNotApproved = errors.New("agent account is pending approval")

	// ErrTxDone indicates the atomic unit was already committed or rolled back.
	ErrTxDone = errors.New("transaction already finished")
)

// Entry statuses. PENDING applies only to not-yet-approved agent wallets and
// never blocks the owner acting as a regular user.
const (
	StatusActive  = "ACTIVE"
	StatusBlocked = "BLOCKED"
	StatusPending = "PENDING"
)

// Transaction types recorded in the append-only log.
const (
	TypeDeposit      = "DEPOSIT"
	TypeWithdraw     = "WITHDRAW"
	TypeTransfer     = "TRANSFER"
	TypeAgentCashIn  = "AGENT_CASH_IN"
	TypeAgentCashOut = "AGENT_CASH_OUT"
)

// Entry is the balance record for one principal (user, agent, or the system
// account). Balance is held in minor currency units and never goes negative.
type Entry struct {
	OwnerID   string
	Balance   int64
	Status    string
	CreatedAt time.Time
}

// Transaction is one completed money movement. Records are written once and
// never updated or deleted. Sender, Receiver and Agent are optional owner
// references; which are set depends on Type.
type Transaction struct {
	ID         string
	Type       string
	Amount     int64
	Sender     string
	Receiver   string
	Agent      string
	Fee        int64
	Commission int64
	CreatedAt  time.Time
}

// Store persists ledger entries and the transaction log.
type Store interface {
	// CreateEntry provisions the single entry for an owner with its opening balance.
	CreateEntry(ctx context.Context, ownerID string, opening int64, status string) (Entry, error)
	// Entry returns the current entry for an owner, or ErrNotFound.
	Entry(ctx context.Context, ownerID string) (Entry, error)
	// SetStatus updates the administrative status of an entry.
	SetStatus(ctx context.Context, ownerID, status string) (Entry, error)
	// TransactionsFor lists transactions where the owner is sender, receiver
	// or agent, newest first.
	TransactionsFor(ctx context.Context, ownerID string) ([]Transaction, error)
	// Begin opens the atomic unit used by the transfer engine. Every mutation
	// and log append inside it commits or rolls back together.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one atomic unit against the store. Entry takes a lock on the owner's
// record for the duration of the unit; callers must acquire entries in sorted
// owner order to avoid lock cycles on hot accounts.
type Tx interface {
	Entry(ctx context.Context, ownerID string) (Entry, error)
	// ApplyDelta adjusts a balance by delta (negative for debits) and returns
	// the resulting entry. A delta that would make the balance negative fails
	// with ErrInsufficientFunds and mutates nothing.
	ApplyDelta(ctx context.Context, ownerID string, delta int64) (Entry, error)
	// Append writes one transaction record inside the unit and returns it
	// with its identifier and timestamp assigned.
	Append(ctx context.Context, txn Transaction) (Transaction, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
