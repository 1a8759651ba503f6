package recovery

import (
	"context"
	"sync"

	"github.com/zero-day-ai/resilience/fault"
)

// LedgerStore persists retry attempt counters. An absent key and a key at
// zero are equivalent.
type LedgerStore interface {
	// Get returns the attempt count for key and whether an entry exists.
	Get(ctx context.Context, key string) (int, bool, error)

	// Increment adds one to the counter for key and returns the new value.
	Increment(ctx context.Context, key string) (int, error)

	// Delete removes the entry for key entirely.
	Delete(ctx context.Context, key string) error
}

// Key derives the retry ledger key for a fault raised in oc.
func Key(oc OperationContext, err error) string {
	return oc.Operation + "|" + oc.Component + "|" + fault.Kind(err)
}

// MemoryStore is an in-process LedgerStore.
//
// Entries are removed only by Delete. Keys that reach the retry ceiling and
// are never retried stay resident; the key space is bounded by the distinct
// operation/component/fault-kind combinations a process produces.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]int)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.entries[key]
	return n, ok, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key]++
	return s.entries[key], nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) set(key string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = n
}

// Len returns the number of resident entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// keyMutex serializes work per key. Entries are reference counted and
// dropped once no caller holds or waits on them.
type keyMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[string]*keyLock)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
