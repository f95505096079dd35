package watch

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/gridwatch/gridwatch/telemetry"
	"github.com/rs/zerolog/log"
)

// EventKind discriminates the change classes a subscription can watch.
type EventKind uint8

const (
	Added EventKind = iota
	Modified
	Deleted
)

// String returns the lowercase kind name used in logs, metrics and topics.
func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "removed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event is what a subscriber receives per changed record.
type Event struct {
	Table  string
	Kind   EventKind
	ID     string
	Fields map[string]interface{}
	Raw    bool // True for raw (undebounced) modifications
}

// Handler consumes one event. A returned error is reported and does not
// affect delivery to other subscriptions.
type Handler func(Event) error

// Subscription registers interest in one change class of one table.
// Raw selects undebounced modifications; it is ignored for Added and
// Deleted, which have no debounced form.
type Subscription struct {
	ID      string
	Kind    EventKind
	Table   string
	Raw     bool
	Handler Handler
}

// Dispatcher holds the subscription registry and delivers classified changes.
// Registration happens at setup time; dispatch happens once per tick on the
// scheduler goroutine. Delivery is strictly sequential: one handler finishes
// before the next is invoked.
type Dispatcher struct {
	connectorID uint64

	mu    sync.RWMutex
	subs  map[string]*Subscription
	order []string // Registration order, drives deterministic delivery
}

// NewDispatcher creates an empty subscription registry.
func NewDispatcher(connectorID uint64) *Dispatcher {
	return &Dispatcher{
		connectorID: connectorID,
		subs:        map[string]*Subscription{},
	}
}

// Register adds a subscription and returns its identifier. An empty ID gets
// a deterministic composite derived from kind, table, raw flag and connector
// ID. Registering a duplicate ID overwrites the previous subscription but
// keeps its position in delivery order.
func (d *Dispatcher) Register(sub Subscription) string {
	if sub.ID == "" {
		sub.ID = d.defaultID(sub)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subs[sub.ID]; exists {
		log.Warn().Str("subscription", sub.ID).Msg("Duplicate subscription ID, overwriting")
	} else {
		d.order = append(d.order, sub.ID)
	}
	s := sub
	d.subs[sub.ID] = &s

	log.Debug().
		Str("subscription", sub.ID).
		Str("table", sub.Table).
		Str("kind", sub.Kind.String()).
		Bool("raw", sub.Raw).
		Msg("Registered subscription")

	return sub.ID
}

func (d *Dispatcher) defaultID(sub Subscription) string {
	composite := fmt.Sprintf("%s/%s/raw=%t/%d", sub.Kind, sub.Table, sub.Raw, d.connectorID)
	return fmt.Sprintf("sub-%016x", xxhash.Sum64String(composite))
}

// Tables returns the sorted set of tables with at least one subscription.
// This is the watched-table set: tables outside it are never fetched.
func (d *Dispatcher) Tables() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := map[string]struct{}{}
	for _, sub := range d.subs {
		seen[sub.Table] = struct{}{}
	}

	tables := make([]string, 0, len(seen))
	for table := range seen {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}

// DispatchTable delivers one table's classified changes for one tick:
// additions, then settled modifications, then raw modifications, then
// removals. Record order within each class is sorted by identifier and
// subscriptions fire in registration order, so a tick's delivery sequence is
// fully deterministic.
func (d *Dispatcher) DispatchTable(table string, diff TableDiff, settled map[string]Record) {
	d.fire(table, Added, false, diff.Added)
	d.fire(table, Modified, false, settled)
	d.fire(table, Modified, true, diff.Modified)
	d.fire(table, Deleted, false, diff.Removed)
}

func (d *Dispatcher) fire(table string, kind EventKind, raw bool, records map[string]Record) {
	if len(records) == 0 {
		return
	}

	matching := d.matching(table, kind, raw)
	if len(matching) == 0 {
		return
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	metricKind := kind.String()
	if raw {
		metricKind = "raw"
	}

	for _, id := range ids {
		event := Event{
			Table:  table,
			Kind:   kind,
			ID:     id,
			Fields: records[id].Fields,
			Raw:    raw,
		}
		for _, sub := range matching {
			if err := sub.Handler(event); err != nil {
				telemetry.HandlerErrorsTotal.Inc()
				log.Error().
					Err(err).
					Str("subscription", sub.ID).
					Str("table", table).
					Str("kind", metricKind).
					Str("record", id).
					Msg("Subscriber handler failed")
				continue
			}
			telemetry.EventsDispatchedTotal.With(metricKind).Inc()
		}
	}
}

// matching returns subscriptions for (table, kind, raw) in registration
// order. The raw flag only discriminates Modified subscriptions.
func (d *Dispatcher) matching(table string, kind EventKind, raw bool) []*Subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*Subscription
	for _, id := range d.order {
		sub := d.subs[id]
		if sub.Table != table || sub.Kind != kind {
			continue
		}
		if kind == Modified && sub.Raw != raw {
			continue
		}
		out = append(out, sub)
	}
	return out
}
