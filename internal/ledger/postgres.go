package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists ledger entries and the transaction log in PostgreSQL.
// Atomic units map to database transactions; entry reads inside a unit take
// row locks so concurrent operations on overlapping wallets serialize.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateEntry provisions the wallet row for an owner.
func (s *PostgresStore) CreateEntry(ctx context.Context, ownerID string, opening int64, status string) (Entry, error) {
	if opening < 0 {
		return Entry{}, ErrInvalidAmount
	}
	row := s.db.QueryRow(ctx, `INSERT INTO wallets (owner_id, balance, status)
        VALUES ($1, $2, $3)
        RETURNING owner_id, balance, status, created_at`, ownerID, opening, status)
	return scanEntry(row)
}

// Entry fetches the current entry without locking.
func (s *PostgresStore) Entry(ctx context.Context, ownerID string) (Entry, error) {
	row := s.db.QueryRow(ctx, `SELECT owner_id, balance, status, created_at
        FROM wallets WHERE owner_id = $1`, ownerID)
	return scanEntry(row)
}

// SetStatus updates the administrative status of a wallet.
func (s *PostgresStore) SetStatus(ctx context.Context, ownerID, status string) (Entry, error) {
	row := s.db.QueryRow(ctx, `UPDATE wallets SET status = $2 WHERE owner_id = $1
        RETURNING owner_id, balance, status, created_at`, ownerID, status)
	return scanEntry(row)
}

// TransactionsFor lists the newest transactions involving the owner as any party.
func (s *PostgresStore) TransactionsFor(ctx context.Context, ownerID string) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `SELECT id, type, amount, sender, receiver, agent, fee, commission, created_at
        FROM transactions
        WHERE sender = $1 OR receiver = $1 OR agent = $1
        ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var t Transaction
		var id uuid.UUID
		var sender, receiver, agent *string
		if err := rows.Scan(&id, &t.Type, &t.Amount, &sender, &receiver, &agent, &t.Fee, &t.Commission, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.ID = id.String()
		t.Sender = deref(sender)
		t.Receiver = deref(receiver)
		t.Agent = deref(agent)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// Begin opens a database transaction backing one atomic unit.
func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin ledger tx: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}

type postgresTx struct {
	tx   pgx.Tx
	done bool
}

// Entry reads the wallet row with FOR UPDATE so it stays locked until the
// unit finishes.
func (t *postgresTx) Entry(ctx context.Context, ownerID string) (Entry, error) {
	if t.done {
		return Entry{}, ErrTxDone
	}
	row := t.tx.QueryRow(ctx, `SELECT owner_id, balance, status, created_at
        FROM wallets WHERE owner_id = $1 FOR UPDATE`, ownerID)
	return scanEntry(row)
}

func (t *postgresTx) ApplyDelta(ctx context.Context, ownerID string, delta int64) (Entry, error) {
	if t.done {
		return Entry{}, ErrTxDone
	}
	row := t.tx.QueryRow(ctx, `UPDATE wallets SET balance = balance + $2 WHERE owner_id = $1
        RETURNING owner_id, balance, status, created_at`, ownerID, delta)
	entry, err := scanEntry(row)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23514: the balance >= 0 check constraint.
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return Entry{}, ErrInsufficientFunds
		}
		return Entry{}, err
	}
	return entry, nil
}

func (t *postgresTx) Append(ctx context.Context, txn Transaction) (Transaction, error) {
	if t.done {
		return Transaction{}, ErrTxDone
	}
	txn.ID = uuid.NewString()
	row := t.tx.QueryRow(ctx, `INSERT INTO transactions (id, type, amount, sender, receiver, agent, fee, commission)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at`,
		txn.ID, txn.Type, txn.Amount, nullable(txn.Sender), nullable(txn.Receiver), nullable(txn.Agent), txn.Fee, txn.Commission)
	if err := row.Scan(&txn.CreatedAt); err != nil {
		return Transaction{}, fmt.Errorf("append transaction: %w", err)
	}
	return txn, nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback(ctx)
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	if err := row.Scan(&e.OwnerID, &e.Balance, &e.Status, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
