package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalFieldMap(t *testing.T) {
	fields := map[string]interface{}{
		"name":   "alice",
		"age":    int64(42),
		"score":  3.14,
		"active": true,
		"tags":   []interface{}{"a", "b"},
	}

	data, err := Marshal(fields)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, Unmarshal(data, &decoded))

	assert.Equal(t, "alice", decoded["name"])
	assert.Equal(t, int64(42), decoded["age"])
	assert.Equal(t, 3.14, decoded["score"])
	assert.Equal(t, true, decoded["active"])
	assert.Equal(t, []interface{}{"a", "b"}, decoded["tags"])
}

func TestUnmarshalPreservesStrings(t *testing.T) {
	// Strings inside interface{} must come back as string, not []byte.
	// Record equality across restarts depends on this.
	data, err := Marshal(map[string]interface{}{"key": "value"})
	require.NoError(t, err)

	var decoded interface{}
	require.NoError(t, Unmarshal(data, &decoded))

	m, ok := decoded.(map[string]interface{})
	require.True(t, ok)
	_, isString := m["key"].(string)
	assert.True(t, isString, "expected string, got %T", m["key"])
}

func TestUnmarshalInvalidData(t *testing.T) {
	var out map[string]interface{}
	err := Unmarshal([]byte{0xc1}, &out) // 0xc1 is never a valid msgpack code
	assert.Error(t, err)
}
