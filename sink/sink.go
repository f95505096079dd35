// Package sink delivers dispatched change events to external systems. A sink
// is registered as an ordinary set of subscriptions on the connector; every
// matching event is published as a msgpack envelope keyed by record ID.
package sink

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gridwatch/gridwatch/cfg"
)

// Sink represents a destination for change events (e.g. Kafka, NATS, log).
type Sink interface {
	// Publish sends an event to the sink
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Factory creates a sink from its configuration entry.
type Factory func(config cfg.SinkConfiguration) (Sink, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a sink kind available to New. Called from init functions.
func Register(kind string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[kind] = factory
}

// New creates a sink for a configuration entry.
func New(config cfg.SinkConfiguration) (Sink, error) {
	factoriesMu.RLock()
	factory, ok := factories[config.Kind]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown sink kind: %q (registered: %v)", config.Kind, Kinds())
	}
	return factory(config)
}

// Kinds returns the registered sink kinds, sorted.
func Kinds() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	kinds := make([]string, 0, len(factories))
	for kind := range factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
