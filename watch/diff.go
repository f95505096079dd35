package watch

// TableDiff classifies one table's changes between two consecutive snapshots.
type TableDiff struct {
	Added    map[string]Record
	Modified map[string]Record
	Removed  map[string]Record
}

// Empty reports whether the diff carries no changes.
func (d TableDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Removed) == 0
}

func newTableDiff() TableDiff {
	return TableDiff{
		Added:    map[string]Record{},
		Modified: map[string]Record{},
		Removed:  map[string]Record{},
	}
}

// Diff compares two snapshots table by table. Tables are driven by the new
// snapshot; a table with no previous observation (bootstrap) yields an empty
// diff so the first tick never fires events. For every other table, each
// identifier in the union of old and new lands in exactly one of
// added/modified/removed/unchanged.
func Diff(old, new Snapshot) map[string]TableDiff {
	diffs := make(map[string]TableDiff, len(new))

	for name, newTable := range new {
		oldTable, seen := old[name]
		if !seen {
			diffs[name] = newTableDiff()
			continue
		}
		diffs[name] = diffTable(oldTable, newTable)
	}

	return diffs
}

func diffTable(old, new Table) TableDiff {
	diff := newTableDiff()

	for id, newRec := range new {
		oldRec, exists := old[id]
		if !exists {
			diff.Added[id] = newRec
			continue
		}
		if !FieldsEqual(oldRec.Fields, newRec.Fields) {
			diff.Modified[id] = newRec
		}
	}

	for id, oldRec := range old {
		if _, exists := new[id]; !exists {
			diff.Removed[id] = oldRec
		}
	}

	return diff
}
