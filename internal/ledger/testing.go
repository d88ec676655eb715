package ledger

import "errors"

var errInjected = errors.New("injected storage failure")

// SeedBalance is a test helper that overwrites the balance for an owner when
// using the in-memory store.
func SeedBalance(s Store, ownerID string, balance int64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		entry := mem.entries[ownerID]
		entry.OwnerID = ownerID
		if entry.Status == "" {
			entry.Status = StatusActive
		}
		entry.Balance = balance
		mem.entries[ownerID] = entry
	}
}

// FailNextAppend arms the in-memory store to fail its next transaction log
// append, simulating a storage failure in the middle of an atomic unit.
func FailNextAppend(s Store) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.failAppend = true
	}
}

// IsInjectedFailure reports whether err is the failure armed by FailNextAppend.
func IsInjectedFailure(err error) bool {
	return errors.Is(err, errInjected)
}
