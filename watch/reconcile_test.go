package watch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(kv ...interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for i := 0; i < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}

func TestReconcileBootstrap(t *testing.T) {
	raw := map[string]Record{
		"a": rec("a", fields("name", "x")),
	}

	settled, next := Reconcile(nil, raw)

	assert.Empty(t, settled, "nothing settles on the very first invocation")
	require.Contains(t, next, "a")
	assert.True(t, FieldsEqual(fields("name", "x"), next["a"]))
}

func TestReconcileSettleByAbsence(t *testing.T) {
	// Changed last interval, quiet this interval: exactly one settled event,
	// one tick after the raw modification.
	pending := PendingTable{"a": fields("name", "x")}

	settled, next := Reconcile(pending, map[string]Record{})

	require.Contains(t, settled, "a")
	assert.True(t, FieldsEqual(fields("name", "x"), settled["a"].Fields))
	assert.Empty(t, next)
}

func TestReconcileSettleByRepeatedEqualValue(t *testing.T) {
	// Same value observed modified in two consecutive ticks: stable.
	pending := PendingTable{"a": fields("name", "x")}
	raw := map[string]Record{"a": rec("a", fields("name", "x"))}

	settled, next := Reconcile(pending, raw)

	require.Contains(t, settled, "a")
	assert.True(t, FieldsEqual(fields("name", "x"), settled["a"].Fields))
	assert.Empty(t, next)
}

func TestReconcileStillUnstableCarriesLatest(t *testing.T) {
	pending := PendingTable{"a": fields("name", "x")}
	raw := map[string]Record{"a": rec("a", fields("name", "xy"))}

	settled, next := Reconcile(pending, raw)

	assert.Empty(t, settled)
	require.Contains(t, next, "a")
	assert.True(t, FieldsEqual(fields("name", "xy"), next["a"]), "buffer must hold the latest value")
}

func TestReconcileNeverSettlesWhileChanging(t *testing.T) {
	// Distinct value every tick for N ticks: zero settled events.
	var pending PendingTable
	for i := 0; i < 5; i++ {
		raw := map[string]Record{
			"a": rec("a", fields("rev", int64(i))),
		}
		var settled map[string]Record
		settled, pending = Reconcile(pending, raw)
		assert.Empty(t, settled, "tick %d must not settle", i)
		assert.Len(t, pending, 1)
	}

	// One quiet tick finally settles with the last value
	settled, pending := Reconcile(pending, map[string]Record{})
	require.Contains(t, settled, "a")
	assert.True(t, FieldsEqual(fields("rev", int64(4)), settled["a"].Fields))
	assert.Empty(t, pending)
}

func TestReconcileExactlyOneSettledEvent(t *testing.T) {
	// Modify once at tick 1, never again: settled fires at tick 2 and only
	// at tick 2.
	raw1 := map[string]Record{"a": rec("a", fields("name", "x"))}

	settled, pending := Reconcile(nil, raw1)
	assert.Empty(t, settled)

	settled, pending = Reconcile(pending, map[string]Record{})
	assert.Len(t, settled, 1)

	for i := 0; i < 3; i++ {
		settled, pending = Reconcile(pending, map[string]Record{})
		assert.Empty(t, settled, "no repeat settle on tick %d", i+3)
		assert.Empty(t, pending)
	}
}

func TestReconcileIndependentRecords(t *testing.T) {
	pending := PendingTable{
		"stable":   fields("v", int64(1)),
		"churning": fields("v", int64(1)),
	}
	raw := map[string]Record{
		"churning": rec("churning", fields("v", int64(2))),
		"fresh":    rec("fresh", fields("v", int64(9))),
	}

	settled, next := Reconcile(pending, raw)

	assert.Contains(t, settled, "stable")
	assert.NotContains(t, settled, "churning")
	assert.NotContains(t, settled, "fresh")

	assert.Contains(t, next, "churning")
	assert.Contains(t, next, "fresh")
	assert.NotContains(t, next, "stable")
	assert.Len(t, next, 2, "buffer holds one pending value per identifier")
}
