package store

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryStore is an in-process Store for tests and ephemeral runs.
// Values are copied on the way in and out.
type MemoryStore struct {
	values   *xsync.MapOf[string, []byte]
	updateMu sync.Mutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: xsync.NewMapOf[string, []byte](),
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Get returns the value for key.
func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	value, ok := s.values.Load(key)
	if !ok {
		return nil, false, nil
	}
	return clone(value), true, nil
}

// Set persists value under key.
func (s *MemoryStore) Set(key string, value []byte) error {
	s.values.Store(key, clone(value))
	return nil
}

// Update atomically applies fn to the current value and stores the result.
func (s *MemoryStore) Update(key string, fn func(current []byte) ([]byte, error)) ([]byte, []byte, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	old, _, _ := s.Get(key)

	updated, err := fn(old)
	if err != nil {
		return nil, nil, err
	}

	s.values.Store(key, clone(updated))
	return old, updated, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
