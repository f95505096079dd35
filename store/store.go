// Package store provides the persistent key-value backend that carries the
// watch pipeline's snapshot and reconciliation buffer across ticks.
package store

import "errors"

var (
	// ErrCorrupt indicates a stored value could not be decoded. The pipeline
	// treats this as a StoreError and aborts the tick.
	ErrCorrupt = errors.New("store: corrupt value")
)

// Store is the key-value collaborator. Implementations must be safe for
// concurrent use; Update must be atomic with respect to other Updates of
// the same store.
type Store interface {
	// Get returns the value for key, with found=false when the key is absent.
	Get(key string) (value []byte, found bool, err error)

	// Set persists value under key.
	Set(key string, value []byte) error

	// Update atomically applies fn to the current value (nil when absent)
	// and persists the result. Returns the old and new values.
	Update(key string, fn func(current []byte) ([]byte, error)) (old, new []byte, err error)

	// Close releases underlying resources.
	Close() error
}
