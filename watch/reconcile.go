package watch

// PendingTable is one table's reconciliation buffer: record identifier to the
// field map observed as modified but not yet confirmed settled. It is
// persisted between ticks and never cleared wholesale; identifiers leave it
// only by settling or by not changing again.
type PendingTable map[string]map[string]interface{}

// Reconcile debounces one table's raw modifications for one tick.
//
// pending is the buffer persisted by the previous tick (nil on the very first
// tick), raw is this tick's modifications from the diff engine. A record
// settles when its value survives a full interval unchanged: either it was
// pending and did not show up modified again, or it showed up modified with a
// field map equal to the pending one. A record that keeps changing is carried
// forward and never settles while changes continue.
//
// Returns the settled records for this tick and the buffer to persist for the
// next one.
func Reconcile(pending PendingTable, raw map[string]Record) (map[string]Record, PendingTable) {
	settled := map[string]Record{}
	next := PendingTable{}

	// Changed last interval, quiet this interval: confirmed stable.
	for id, fields := range pending {
		if _, stillChanging := raw[id]; !stillChanging {
			settled[id] = Record{ID: id, Fields: fields}
		}
	}

	for id, rec := range raw {
		prev, wasPending := pending[id]
		switch {
		case !wasPending:
			// First observed change; postpone one interval.
			next[id] = rec.Fields
		case FieldsEqual(prev, rec.Fields):
			// Same value across two consecutive ticks: stable.
			settled[id] = rec
		default:
			// Still unstable; keep waiting with the latest value.
			next[id] = rec.Fields
		}
	}

	return settled, next
}
