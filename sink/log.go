package sink

import (
	"github.com/gridwatch/gridwatch/cfg"
	"github.com/rs/zerolog/log"
)

func init() {
	Register("log", func(config cfg.SinkConfiguration) (Sink, error) {
		return &LogSink{}, nil
	})
}

// LogSink dumps every event to the structured log. Useful while developing
// a connector configuration before pointing it at a real broker.
type LogSink struct{}

// Publish logs the event.
func (s *LogSink) Publish(topic, key string, value []byte) error {
	log.Info().
		Str("topic", topic).
		Str("key", key).
		Int("bytes", len(value)).
		Bool("tombstone", value == nil).
		Msg("Event")
	return nil
}

// Close is a no-op.
func (s *LogSink) Close() error {
	return nil
}
