package sink

import (
	"testing"

	"github.com/gridwatch/gridwatch/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryKnownKinds(t *testing.T) {
	kinds := Kinds()
	assert.Contains(t, kinds, "nats")
	assert.Contains(t, kinds, "kafka")
	assert.Contains(t, kinds, "log")
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(cfg.SinkConfiguration{Kind: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNewLogSink(t *testing.T) {
	s, err := New(cfg.SinkConfiguration{Kind: "log"})
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Publish("gridwatch.t.added", "a", []byte("x")))
}

func TestNatsSinkRequiresURL(t *testing.T) {
	_, err := New(cfg.SinkConfiguration{Kind: "nats"})
	assert.Error(t, err)
}

func TestKafkaSinkRequiresBrokers(t *testing.T) {
	_, err := New(cfg.SinkConfiguration{Kind: "kafka"})
	assert.Error(t, err)
}

func TestKafkaSinkDefaults(t *testing.T) {
	s, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	defer s.Close()
}

func TestSanitizeStreamName(t *testing.T) {
	assert.Equal(t, "gridwatch_tasks_added", sanitizeStreamName("gridwatch.tasks.added"))
	assert.Equal(t, "plain", sanitizeStreamName("plain"))
}
