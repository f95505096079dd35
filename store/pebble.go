package store

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/gridwatch/gridwatch/telemetry"
	"github.com/klauspost/compress/s2"
	"github.com/rs/zerolog/log"
)

// Value encoding markers. Snapshots of large tables compress well (field
// names repeat per record), small values are not worth the s2 framing.
const (
	valueRaw        byte = 0
	valueCompressed byte = 1
)

// PebbleStore implements Store on a Pebble database. A single writer mutex
// serializes Update so the pipeline's read-modify-write of snapshot and
// buffer state is one critical section.
type PebbleStore struct {
	db   *pebble.DB
	path string

	compressThreshold int

	writeMu sync.Mutex
	closed  sync.Once
}

var _ Store = (*PebbleStore)(nil)

// NewPebbleStore opens (or creates) a Pebble-backed store at path.
// Values larger than compressThreshold bytes are s2-compressed;
// compressThreshold <= 0 disables compression.
func NewPebbleStore(path string, compressThreshold int) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", path, err)
	}

	log.Debug().Str("path", path).Msg("Opened pebble store")

	return &PebbleStore{
		db:                db,
		path:              path,
		compressThreshold: compressThreshold,
	}, nil
}

func (s *PebbleStore) encode(value []byte) []byte {
	if s.compressThreshold > 0 && len(value) > s.compressThreshold {
		return append([]byte{valueCompressed}, s2.Encode(nil, value)...)
	}
	return append([]byte{valueRaw}, value...)
}

func (s *PebbleStore) decode(value []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, ErrCorrupt
	}
	switch value[0] {
	case valueRaw:
		out := make([]byte, len(value)-1)
		copy(out, value[1:])
		return out, nil
	case valueCompressed:
		out, err := s2.Decode(nil, value[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return out, nil
	default:
		return nil, ErrCorrupt
	}
}

// Get returns the value for key.
func (s *PebbleStore) Get(key string) ([]byte, bool, error) {
	telemetry.StoreOpsTotal.With("get").Inc()

	raw, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pebble get %q: %w", key, err)
	}
	defer closer.Close()

	value, err := s.decode(raw)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set persists value under key with a synced write.
func (s *PebbleStore) Set(key string, value []byte) error {
	telemetry.StoreOpsTotal.With("set").Inc()

	if err := s.db.Set([]byte(key), s.encode(value), pebble.Sync); err != nil {
		return fmt.Errorf("pebble set %q: %w", key, err)
	}
	return nil
}

// Update atomically applies fn to the current value and persists the result.
func (s *PebbleStore) Update(key string, fn func(current []byte) ([]byte, error)) ([]byte, []byte, error) {
	telemetry.StoreOpsTotal.With("update").Inc()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old, _, err := s.Get(key)
	if err != nil {
		return nil, nil, err
	}

	updated, err := fn(old)
	if err != nil {
		return nil, nil, err
	}

	if err := s.db.Set([]byte(key), s.encode(updated), pebble.Sync); err != nil {
		return nil, nil, fmt.Errorf("pebble update %q: %w", key, err)
	}
	return old, updated, nil
}

// Close closes the underlying Pebble database. Idempotent.
func (s *PebbleStore) Close() error {
	var err error
	s.closed.Do(func() {
		err = s.db.Close()
	})
	return err
}
