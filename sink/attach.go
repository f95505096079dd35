package sink

import (
	"fmt"
	"time"

	"github.com/gridwatch/gridwatch/cfg"
	"github.com/gridwatch/gridwatch/encoding"
	"github.com/gridwatch/gridwatch/watch"
	"github.com/rs/zerolog/log"
)

// Envelope is the wire format published per event.
type Envelope struct {
	Table  string                 `msgpack:"tbl"`
	Kind   string                 `msgpack:"kind"`
	ID     string                 `msgpack:"id"`
	Fields map[string]interface{} `msgpack:"fields"`
	Raw    bool                   `msgpack:"raw"`
	SentAt int64                  `msgpack:"ts"` // Unix milliseconds
}

// Topic returns the destination topic for an event:
// {prefix}.{table}.{added|modified|removed}.
func Topic(prefix, table string, kind watch.EventKind) string {
	if prefix == "" {
		prefix = "gridwatch"
	}
	return fmt.Sprintf("%s.%s.%s", prefix, table, kind)
}

// Attach registers sink subscriptions on the connector for every watched
// table matching the sink's patterns. name must be unique per sink instance,
// it namespaces the subscription IDs so two sinks on the same table never
// overwrite each other. Modifications are delivered settled by default, raw
// when the configuration asks for it. Removal events additionally publish a
// tombstone (nil value) under the same key.
func Attach(conn *watch.Connector, s Sink, name string, config cfg.SinkConfiguration, tables []string) error {
	filter, err := NewTableFilter(config.Tables)
	if err != nil {
		return err
	}

	attached := 0
	for _, table := range tables {
		if !filter.Match(table) {
			continue
		}
		attached++

		handler := publishHandler(s, config.TopicPrefix)
		conn.Subscribe(table, watch.Added, false, handler, fmt.Sprintf("%s/%s/added", name, table))
		conn.Subscribe(table, watch.Modified, config.Raw, handler, fmt.Sprintf("%s/%s/modified", name, table))
		conn.Subscribe(table, watch.Deleted, false, tombstoneHandler(s, config.TopicPrefix, handler),
			fmt.Sprintf("%s/%s/removed", name, table))
	}

	log.Info().
		Str("sink", name).
		Str("kind", config.Kind).
		Int("tables", attached).
		Bool("raw", config.Raw).
		Msg("Attached sink")
	return nil
}

func publishHandler(s Sink, prefix string) watch.Handler {
	return func(event watch.Event) error {
		value, err := encoding.Marshal(Envelope{
			Table:  event.Table,
			Kind:   event.Kind.String(),
			ID:     event.ID,
			Fields: event.Fields,
			Raw:    event.Raw,
			SentAt: time.Now().UnixMilli(),
		})
		if err != nil {
			return fmt.Errorf("encoding envelope: %w", err)
		}
		return s.Publish(Topic(prefix, event.Table, event.Kind), event.ID, value)
	}
}

// tombstoneHandler publishes the removal envelope, then a tombstone marker.
func tombstoneHandler(s Sink, prefix string, publish watch.Handler) watch.Handler {
	return func(event watch.Event) error {
		if err := publish(event); err != nil {
			return err
		}
		return s.Publish(Topic(prefix, event.Table, event.Kind), event.ID, nil)
	}
}
