package watch

import (
	"context"
	"time"

	"github.com/gridwatch/gridwatch/source"
	"github.com/gridwatch/gridwatch/store"
)

// Connector is the assembled engine: subscription registry, polling pipeline
// and scheduler over one source and one state store. Subscriptions are
// registered at setup time, before Start.
type Connector struct {
	dispatcher *Dispatcher
	pipeline   *Pipeline
	scheduler  *Scheduler
}

// ConnectorConfig wires a Connector to its collaborators.
type ConnectorConfig struct {
	ConnectorID  uint64
	Source       source.Client
	Store        store.Store
	Interval     time.Duration
	FetchTimeout time.Duration
}

// NewConnector builds a connector. The watched-table set is derived from the
// subscriptions registered before Start; tables nobody subscribed to are
// never fetched.
func NewConnector(config ConnectorConfig) *Connector {
	dispatcher := NewDispatcher(config.ConnectorID)
	pipeline := NewPipeline(config.Source, config.Store, dispatcher, config.FetchTimeout)

	return &Connector{
		dispatcher: dispatcher,
		pipeline:   pipeline,
		scheduler:  NewScheduler(pipeline, config.Interval),
	}
}

// Subscribe registers handler for one change class of one table and returns
// the subscription ID. raw selects undebounced modifications; id may be
// empty to get a deterministic generated one.
func (c *Connector) Subscribe(table string, kind EventKind, raw bool, handler Handler, id string) string {
	return c.dispatcher.Register(Subscription{
		ID:      id,
		Kind:    kind,
		Table:   table,
		Raw:     raw,
		Handler: handler,
	})
}

// Start begins polling.
func (c *Connector) Start() {
	c.scheduler.Start()
}

// Stop halts polling, draining any in-flight tick.
func (c *Connector) Stop() {
	c.scheduler.Stop()
}

// RunOnce executes a single tick synchronously. Used by tests and the admin
// trigger endpoint; must not be called while the scheduler is running a tick.
func (c *Connector) RunOnce(ctx context.Context) error {
	return c.pipeline.Run(ctx)
}

// Tables returns the watched-table set.
func (c *Connector) Tables() []string {
	return c.dispatcher.Tables()
}

// LastRun returns stats from the most recent tick.
func (c *Connector) LastRun() RunStats {
	return c.pipeline.LastRun()
}

// PendingForTable exposes one table's reconciliation buffer.
func (c *Connector) PendingForTable(table string) (PendingTable, error) {
	return c.pipeline.PendingForTable(table)
}
