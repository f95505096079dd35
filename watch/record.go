// Package watch implements the change-detection engine: snapshot model,
// diffing, debounce reconciliation, subscription dispatch and the polling
// scheduler that drives one pipeline run per interval.
package watch

// Record is one row of a watched table: a unique identifier plus a field map.
type Record struct {
	ID     string                 `msgpack:"id"`
	Fields map[string]interface{} `msgpack:"fields"`
}

// Table holds the records of one table keyed by identifier.
type Table map[string]Record

// Snapshot is a point-in-time view of all watched tables.
type Snapshot map[string]Table

// FieldsEqual reports deep structural equality of two field maps. It is the
// single arbiter of "changed" for both the diff engine and the reconciliation
// buffer; using anything else for either would let a record settle against a
// value the diff still considers modified.
//
// The value domain is what msgpack and JSON decoding produce: nil, bool,
// string, []byte, int64/uint64/float64, []interface{} and
// map[string]interface{}. Numbers compare by value across integer and float
// kinds, so a snapshot restored from the store compares equal to a freshly
// fetched one even when the decoder picked a different numeric width.
func FieldsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for key, av := range a {
		bv, ok := b[key]
		if !ok || !valueEqual(av, bv) {
			return false
		}
	}
	return true
}

func valueEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		switch bv := b.(type) {
		case string:
			return av == bv
		case []byte:
			return av == string(bv)
		}
		return false
	case []byte:
		switch bv := b.(type) {
		case []byte:
			return string(av) == string(bv)
		case string:
			return string(av) == bv
		}
		return false
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valueEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		return ok && FieldsEqual(av, bv)
	}

	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		return ok && numberEqual(an, bn)
	}

	return a == b
}

// number is a numeric value widened for cross-kind comparison.
type number struct {
	i     int64
	u     uint64
	f     float64
	isInt bool // i valid
	isU   bool // u valid (value > MaxInt64)
}

func asNumber(v interface{}) (number, bool) {
	switch n := v.(type) {
	case int:
		return number{i: int64(n), isInt: true}, true
	case int8:
		return number{i: int64(n), isInt: true}, true
	case int16:
		return number{i: int64(n), isInt: true}, true
	case int32:
		return number{i: int64(n), isInt: true}, true
	case int64:
		return number{i: n, isInt: true}, true
	case uint:
		return asUint(uint64(n)), true
	case uint8:
		return number{i: int64(n), isInt: true}, true
	case uint16:
		return number{i: int64(n), isInt: true}, true
	case uint32:
		return number{i: int64(n), isInt: true}, true
	case uint64:
		return asUint(n), true
	case float32:
		return number{f: float64(n)}, true
	case float64:
		return number{f: n}, true
	}
	return number{}, false
}

func asUint(u uint64) number {
	if u <= uint64(1<<63-1) {
		return number{i: int64(u), isInt: true}
	}
	return number{u: u, isU: true}
}

func numberEqual(a, b number) bool {
	switch {
	case a.isInt && b.isInt:
		return a.i == b.i
	case a.isU && b.isU:
		return a.u == b.u
	case a.isU || b.isU:
		// One side exceeds MaxInt64, the other does not
		if a.isInt || b.isInt {
			return false
		}
		if a.isU {
			return float64(a.u) == b.f
		}
		return a.f == float64(b.u)
	case a.isInt:
		return float64(a.i) == b.f
	case b.isInt:
		return a.f == float64(b.i)
	default:
		return a.f == b.f
	}
}
