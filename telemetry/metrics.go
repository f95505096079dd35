package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// TickBuckets for full pipeline runs (fetch is network bound)
	TickBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

	// FetchBuckets for single-table fetches
	FetchBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
)

// Pipeline metrics
var (
	// TicksTotal counts pipeline runs by result (success, failed, skipped)
	TicksTotal CounterVec = noopCounterVec{}

	// TickDurationSeconds measures full fetch->diff->reconcile->dispatch latency
	TickDurationSeconds Histogram = NoopStat{}

	// FetchDurationSeconds measures per-table fetch latency
	FetchDurationSeconds Histogram = NoopStat{}

	// FetchErrorsTotal counts per-table fetch failures
	FetchErrorsTotal CounterVec = noopCounterVec{} // labels: table

	// RecordsFetchedTotal counts records pulled from the source
	RecordsFetchedTotal Counter = NoopStat{}
)

// Dispatch metrics
var (
	// EventsDispatchedTotal counts delivered events by kind (added, modified, removed, raw)
	EventsDispatchedTotal CounterVec = noopCounterVec{}

	// HandlerErrorsTotal counts subscriber callbacks that returned an error
	HandlerErrorsTotal Counter = NoopStat{}

	// PendingRecords tracks unsettled records in the reconciliation buffer per table
	PendingRecords GaugeVec = noopGaugeVec{}
)

// Store metrics
var (
	// StoreOpsTotal counts key-value store operations by op (get, set, update)
	StoreOpsTotal CounterVec = noopCounterVec{}
)

// bindMetrics replaces noop metrics with real Prometheus collectors.
// Called from InitializeTelemetry after the registry exists.
func bindMetrics() {
	TicksTotal = NewCounterVec("ticks_total", "Pipeline runs by result", []string{"result"})
	TickDurationSeconds = NewHistogramWithBuckets("tick_duration_seconds", "Full pipeline run latency", TickBuckets)
	FetchDurationSeconds = NewHistogramWithBuckets("fetch_duration_seconds", "Per-table fetch latency", FetchBuckets)
	FetchErrorsTotal = NewCounterVec("fetch_errors_total", "Per-table fetch failures", []string{"table"})
	RecordsFetchedTotal = NewCounter("records_fetched_total", "Records pulled from the source")

	EventsDispatchedTotal = NewCounterVec("events_dispatched_total", "Delivered events by kind", []string{"kind"})
	HandlerErrorsTotal = NewCounter("handler_errors_total", "Subscriber callbacks that returned an error")
	PendingRecords = NewGaugeVec("pending_records", "Unsettled records in the reconciliation buffer", []string{"table"})

	StoreOpsTotal = NewCounterVec("store_ops_total", "Key-value store operations", []string{"op"})
}
