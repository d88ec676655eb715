package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryStore struct {
	mu         sync.Mutex
	entries    map[string]Entry
	log        []Transaction
	failAppend bool
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit
// tests and dev mode. Atomic units stage their mutations and apply them only
// at commit, holding the store lock from Begin until the unit finishes so
// overlapping operations serialize.
func NewInMemory() Store {
	return &inMemoryStore{entries: make(map[string]Entry)}
}

func (s *inMemoryStore) CreateEntry(_ context.Context, ownerID string, opening int64, status string) (Entry, error) {
	if opening < 0 {
		return Entry{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[ownerID]; exists {
		return Entry{}, ErrInvalidAmount
	}
	entry := Entry{OwnerID: ownerID, Balance: opening, Status: status, CreatedAt: time.Now().UTC()}
	s.entries[ownerID] = entry
	return entry, nil
}

func (s *inMemoryStore) Entry(_ context.Context, ownerID string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[ownerID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

func (s *inMemoryStore) SetStatus(_ context.Context, ownerID, status string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[ownerID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	entry.Status = status
	s.entries[ownerID] = entry
	return entry, nil
}

func (s *inMemoryStore) TransactionsFor(_ context.Context, ownerID string) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var txns []Transaction
	for _, t := range s.log {
		if t.Sender == ownerID || t.Receiver == ownerID || t.Agent == ownerID {
			txns = append(txns, t)
		}
	}
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].CreatedAt.After(txns[j].CreatedAt) })
	return txns, nil
}

func (s *inMemoryStore) Begin(_ context.Context) (Tx, error) {
	s.mu.Lock()
	return &inMemoryTx{store: s, deltas: make(map[string]int64)}, nil
}

type inMemoryTx struct {
	store   *inMemoryStore
	deltas  map[string]int64
	pending []Transaction
	done    bool
}

func (t *inMemoryTx) Entry(_ context.Context, ownerID string) (Entry, error) {
	if t.done {
		return Entry{}, ErrTxDone
	}
	entry, ok := t.store.entries[ownerID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	entry.Balance += t.deltas[ownerID]
	return entry, nil
}

func (t *inMemoryTx) ApplyDelta(_ context.Context, ownerID string, delta int64) (Entry, error) {
	if t.done {
		return Entry{}, ErrTxDone
	}
	entry, ok := t.store.entries[ownerID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	staged := t.deltas[ownerID] + delta
	if entry.Balance+staged < 0 {
		return Entry{}, ErrInsufficientFunds
	}
	t.deltas[ownerID] = staged
	entry.Balance += staged
	return entry, nil
}

func (t *inMemoryTx) Append(_ context.Context, txn Transaction) (Transaction, error) {
	if t.done {
		return Transaction{}, ErrTxDone
	}
	if t.store.failAppend {
		t.store.failAppend = false
		return Transaction{}, errInjected
	}
	txn.ID = uuid.NewString()
	txn.CreatedAt = time.Now().UTC()
	t.pending = append(t.pending, txn)
	return txn, nil
}

func (t *inMemoryTx) Commit(_ context.Context) error {
	if t.done {
		return ErrTxDone
	}
	for ownerID, delta := range t.deltas {
		entry := t.store.entries[ownerID]
		entry.Balance += delta
		t.store.entries[ownerID] = entry
	}
	t.store.log = append(t.store.log, t.pending...)
	t.finish()
	return nil
}

func (t *inMemoryTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *inMemoryTx) finish() {
	t.done = true
	t.deltas = nil
	t.pending = nil
	t.store.mu.Unlock()
}
