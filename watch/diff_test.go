package watch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id string, fields map[string]interface{}) Record {
	return Record{ID: id, Fields: fields}
}

func TestDiffAddModifyRemove(t *testing.T) {
	old := Snapshot{"tasks": Table{
		"a": rec("a", map[string]interface{}{"name": "x"}),
		"b": rec("b", map[string]interface{}{"name": "y"}),
		"c": rec("c", map[string]interface{}{"name": "z"}),
	}}
	new := Snapshot{"tasks": Table{
		"a": rec("a", map[string]interface{}{"name": "x"}),       // unchanged
		"b": rec("b", map[string]interface{}{"name": "y2"}),      // modified
		"d": rec("d", map[string]interface{}{"name": "fresh"}),   // added
	}}

	diffs := Diff(old, new)
	require.Contains(t, diffs, "tasks")
	d := diffs["tasks"]

	assert.Len(t, d.Added, 1)
	assert.Contains(t, d.Added, "d")
	assert.Len(t, d.Modified, 1)
	assert.Equal(t, "y2", d.Modified["b"].Fields["name"])
	assert.Len(t, d.Removed, 1)
	assert.Equal(t, "z", d.Removed["c"].Fields["name"])
}

func TestDiffPartitionsUnion(t *testing.T) {
	old := Table{
		"a": rec("a", map[string]interface{}{"v": int64(1)}),
		"b": rec("b", map[string]interface{}{"v": int64(2)}),
		"c": rec("c", map[string]interface{}{"v": int64(3)}),
	}
	new := Table{
		"b": rec("b", map[string]interface{}{"v": int64(2)}),
		"c": rec("c", map[string]interface{}{"v": int64(33)}),
		"d": rec("d", map[string]interface{}{"v": int64(4)}),
	}

	d := diffTable(old, new)

	union := map[string]struct{}{}
	for id := range old {
		union[id] = struct{}{}
	}
	for id := range new {
		union[id] = struct{}{}
	}

	classified := 0
	for id := range union {
		count := 0
		if _, ok := d.Added[id]; ok {
			count++
		}
		if _, ok := d.Modified[id]; ok {
			count++
		}
		if _, ok := d.Removed[id]; ok {
			count++
		}
		_, inOld := old[id]
		_, inNew := new[id]
		unchanged := inOld && inNew && FieldsEqual(old[id].Fields, new[id].Fields)
		if unchanged {
			assert.Zero(t, count, "unchanged id %s must not be classified", id)
		} else {
			assert.Equal(t, 1, count, "id %s must land in exactly one class", id)
		}
		classified += count
	}
	assert.Equal(t, 3, classified) // a removed, c modified, d added
}

func TestDiffIdempotent(t *testing.T) {
	snap := Snapshot{
		"tasks": Table{"a": rec("a", map[string]interface{}{"name": "x", "n": int64(1)})},
		"users": Table{"u": rec("u", map[string]interface{}{"email": "e"})},
	}

	for table, d := range Diff(snap, snap) {
		assert.True(t, d.Empty(), "self-diff of %s must be empty", table)
	}
}

func TestDiffBootstrapTableFiresNothing(t *testing.T) {
	new := Snapshot{"tasks": Table{
		"a": rec("a", map[string]interface{}{"name": "x"}),
	}}

	diffs := Diff(Snapshot{}, new)
	require.Contains(t, diffs, "tasks")
	assert.True(t, diffs["tasks"].Empty())

	// Table appearing for the first time while others have history
	old := Snapshot{"users": Table{}}
	diffs = Diff(old, Snapshot{"tasks": new["tasks"], "users": Table{}})
	assert.True(t, diffs["tasks"].Empty())
}

func TestDiffScenarioFromTwoPolls(t *testing.T) {
	// {A:{name:x}, B:{name:y}} -> {A:{name:x}, C:{name:z}}
	old := Snapshot{"t": Table{
		"A": rec("A", map[string]interface{}{"name": "x"}),
		"B": rec("B", map[string]interface{}{"name": "y"}),
	}}
	new := Snapshot{"t": Table{
		"A": rec("A", map[string]interface{}{"name": "x"}),
		"C": rec("C", map[string]interface{}{"name": "z"}),
	}}

	d := Diff(old, new)["t"]
	assert.Len(t, d.Removed, 1)
	assert.Contains(t, d.Removed, "B")
	assert.Len(t, d.Added, 1)
	assert.Contains(t, d.Added, "C")
	assert.Empty(t, d.Modified)
}

func TestDiffEqualityIsSharedArbiter(t *testing.T) {
	// Numeric width differences are not modifications
	old := Table{"a": rec("a", map[string]interface{}{"n": int64(5)})}
	new := Table{"a": rec("a", map[string]interface{}{"n": float64(5)})}
	assert.True(t, diffTable(old, new).Empty())
}
