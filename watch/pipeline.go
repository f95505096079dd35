package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gridwatch/gridwatch/encoding"
	"github.com/gridwatch/gridwatch/source"
	"github.com/gridwatch/gridwatch/store"
	"github.com/gridwatch/gridwatch/telemetry"
	"github.com/jizhuozhi/go-future"
	"github.com/rs/zerolog/log"
)

// Store key prefixes, one key per table
const (
	snapshotKeyPrefix = "/snap/" // /snap/{table} -> msgpack(Table)
	pendingKeyPrefix  = "/pend/" // /pend/{table} -> msgpack(PendingTable)
)

// FetchError reports that one table's read failed this tick. The table's
// previous state is carried forward untouched; the rest of the pipeline
// continues.
type FetchError struct {
	Table string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching table %s: %v", e.Table, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TableStats summarizes one table's last processed tick for the admin endpoint.
type TableStats struct {
	Records     int  `json:"records"`
	Added       int  `json:"added"`
	Modified    int  `json:"modified"`
	Settled     int  `json:"settled"`
	Removed     int  `json:"removed"`
	Pending     int  `json:"pending"`
	FetchFailed bool `json:"fetch_failed"`
}

// RunStats summarizes the last completed pipeline run.
type RunStats struct {
	At       time.Time             `json:"at"`
	Duration time.Duration         `json:"duration"`
	Tables   map[string]TableStats `json:"tables"`
	Failed   bool                  `json:"failed"`
	Error    string                `json:"error,omitempty"`
}

// Pipeline executes one fetch -> diff -> reconcile -> dispatch -> persist
// cycle per invocation. Run is not reentrant; the scheduler guarantees one
// run in flight at a time.
type Pipeline struct {
	source       source.Client
	store        store.Store
	dispatcher   *Dispatcher
	fetchTimeout time.Duration

	statsMu sync.Mutex
	last    RunStats
}

// NewPipeline wires the pipeline to its collaborators.
func NewPipeline(src source.Client, st store.Store, dispatcher *Dispatcher, fetchTimeout time.Duration) *Pipeline {
	return &Pipeline{
		source:       src,
		store:        st,
		dispatcher:   dispatcher,
		fetchTimeout: fetchTimeout,
	}
}

// LastRun returns stats from the most recently completed run.
func (p *Pipeline) LastRun() RunStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.last
}

// PendingForTable returns the persisted reconciliation buffer for one table,
// read-only, for the admin endpoint.
func (p *Pipeline) PendingForTable(table string) (PendingTable, error) {
	raw, found, err := p.store.Get(pendingKeyPrefix + table)
	if err != nil || !found {
		return nil, err
	}
	var pending PendingTable
	if err := encoding.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("%w: pending buffer for %s", store.ErrCorrupt, table)
	}
	return pending, nil
}

type fetchResult struct {
	table   Table
	records int
}

// Run executes one tick. A store failure aborts the tick; per-table fetch
// failures are isolated. Returns nil on success (including the no-op tick
// with zero subscriptions).
func (p *Pipeline) Run(ctx context.Context) error {
	started := time.Now()
	stats := RunStats{At: started, Tables: map[string]TableStats{}}

	err := p.run(ctx, &stats)

	stats.Duration = time.Since(started)
	if err != nil {
		stats.Failed = true
		stats.Error = err.Error()
	}

	p.statsMu.Lock()
	p.last = stats
	p.statsMu.Unlock()

	telemetry.TickDurationSeconds.Observe(stats.Duration.Seconds())
	if err != nil {
		telemetry.TicksTotal.With("failed").Inc()
	} else {
		telemetry.TicksTotal.With("success").Inc()
	}
	return err
}

func (p *Pipeline) run(ctx context.Context, stats *RunStats) error {
	tables := p.dispatcher.Tables()
	if len(tables) == 0 {
		log.Debug().Msg("No active subscriptions, skipping tick")
		return nil
	}

	if p.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
	}

	// Assemble the full snapshot before any diffing so one table's pages
	// never interleave with another table's classification.
	futures := make(map[string]*future.Future[fetchResult], len(tables))
	for _, table := range tables {
		promise := future.NewPromise[fetchResult]()
		futures[table] = promise.Future()
		go func(table string, promise *future.Promise[fetchResult]) {
			promise.Set(p.fetchTable(ctx, table))
		}(table, promise)
	}

	for _, table := range tables {
		result, err := futures[table].Get()
		tableStats := TableStats{}

		if err != nil {
			fetchErr := &FetchError{Table: table, Err: err}
			telemetry.FetchErrorsTotal.With(table).Inc()
			log.Error().Err(fetchErr.Err).Str("table", table).Msg("Table fetch failed, carrying previous state forward")
			tableStats.FetchFailed = true
			stats.Tables[table] = tableStats
			continue
		}

		tableStats.Records = result.records
		err = p.processTable(table, result.table, &tableStats)
		stats.Tables[table] = tableStats
		if err != nil {
			return err
		}
	}

	return nil
}

// fetchTable drains one table's pagination to exhaustion.
func (p *Pipeline) fetchTable(ctx context.Context, name string) (fetchResult, error) {
	started := time.Now()
	iter := p.source.List(ctx, name)

	table := Table{}
	count := 0
	for {
		page, err := iter.Next(ctx)
		if errors.Is(err, source.ErrExhausted) {
			break
		}
		if err != nil {
			return fetchResult{}, err
		}
		for _, rec := range page {
			table[rec.ID] = Record{ID: rec.ID, Fields: rec.Fields}
			count++
		}
	}

	telemetry.FetchDurationSeconds.Observe(time.Since(started).Seconds())
	telemetry.RecordsFetchedTotal.Add(float64(count))
	return fetchResult{table: table, records: count}, nil
}

// processTable diffs, reconciles, dispatches and persists one table.
// Any store error aborts the tick; the next tick retries from the last
// successfully persisted state.
func (p *Pipeline) processTable(name string, newTable Table, tableStats *TableStats) error {
	snapKey := snapshotKeyPrefix + name
	pendKey := pendingKeyPrefix + name

	oldRaw, hasPrevious, err := p.store.Get(snapKey)
	if err != nil {
		return fmt.Errorf("loading snapshot for %s: %w", name, err)
	}

	var diff TableDiff
	if hasPrevious {
		var oldTable Table
		if err := encoding.Unmarshal(oldRaw, &oldTable); err != nil {
			return fmt.Errorf("%w: snapshot for %s", store.ErrCorrupt, name)
		}
		diff = diffTable(oldTable, newTable)
	} else {
		// Bootstrap tick: establish the baseline, fire nothing.
		diff = newTableDiff()
	}

	pendRaw, hasPending, err := p.store.Get(pendKey)
	if err != nil {
		return fmt.Errorf("loading pending buffer for %s: %w", name, err)
	}
	var pending PendingTable
	if hasPending {
		if err := encoding.Unmarshal(pendRaw, &pending); err != nil {
			return fmt.Errorf("%w: pending buffer for %s", store.ErrCorrupt, name)
		}
	}

	settled, nextPending := Reconcile(pending, diff.Modified)

	tableStats.Added = len(diff.Added)
	tableStats.Modified = len(diff.Modified)
	tableStats.Settled = len(settled)
	tableStats.Removed = len(diff.Removed)
	tableStats.Pending = len(nextPending)
	telemetry.PendingRecords.With(name).Set(float64(len(nextPending)))

	p.dispatcher.DispatchTable(name, diff, settled)

	snapBytes, err := encoding.Marshal(newTable)
	if err != nil {
		return fmt.Errorf("encoding snapshot for %s: %w", name, err)
	}
	if err := p.store.Set(snapKey, snapBytes); err != nil {
		return fmt.Errorf("persisting snapshot for %s: %w", name, err)
	}

	if _, _, err := p.store.Update(pendKey, func([]byte) ([]byte, error) {
		return encoding.Marshal(nextPending)
	}); err != nil {
		return fmt.Errorf("persisting pending buffer for %s: %w", name, err)
	}

	return nil
}
