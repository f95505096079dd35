package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// SourceKind selects the record-store client implementation
type SourceKind string

const (
	SourceREST SourceKind = "rest" // Paginated HTTP JSON API
	SourceSQL  SourceKind = "sql"  // database/sql over sqlite3 or mysql
)

// SourceConfiguration describes the remote record store being watched
type SourceConfiguration struct {
	Kind       SourceKind `toml:"kind"`
	BaseURL    string     `toml:"base_url"` // REST: API root, table name appended per request
	Token      string     `toml:"token"`    // REST: bearer token
	PageSize   int        `toml:"page_size"`
	Driver     string     `toml:"driver"` // SQL: "sqlite3" or "mysql"
	DSN        string     `toml:"dsn"`
	IDColumn   string     `toml:"id_column"` // SQL: record identifier column
	MaxRetries int        `toml:"max_retries"`
}

// StoreConfiguration controls the persistent key-value backend
type StoreConfiguration struct {
	Path              string `toml:"path"`               // Pebble directory; empty = in-memory
	CompressThreshold int    `toml:"compress_threshold"` // Bytes before snapshot values are s2-compressed
}

// WatchConfiguration controls the polling pipeline
type WatchConfiguration struct {
	IntervalMS     int      `toml:"interval_ms"`
	FetchTimeoutMS int      `toml:"fetch_timeout_ms"`
	Tables         []string `toml:"tables"` // Tables the daemon offers to sinks
}

// SinkConfiguration describes one external delivery target
type SinkConfiguration struct {
	Kind        string   `toml:"kind"` // "nats", "kafka" or "log"
	TopicPrefix string   `toml:"topic_prefix"`
	Tables      []string `toml:"tables"` // Glob patterns; empty = all watched tables
	Raw         bool     `toml:"raw"`    // Subscribe to raw instead of settled modifications
	NatsURL     string   `toml:"nats_url"`
	Brokers     []string `toml:"brokers"`
	BatchSize   int      `toml:"batch_size"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// AdminConfiguration for the status HTTP endpoint
type AdminConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// Configuration is the root config for a gridwatch connector
type Configuration struct {
	ConnectorID uint64 `toml:"connector_id"`

	Source     SourceConfiguration     `toml:"source"`
	Store      StoreConfiguration      `toml:"store"`
	Watch      WatchConfiguration      `toml:"watch"`
	Sinks      []SinkConfiguration     `toml:"sink"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Admin      AdminConfiguration      `toml:"admin"`
}

var (
	ConfigPathFlag = flag.String("config", "gridwatch.toml", "Path to TOML configuration")
	StorePathFlag  = flag.String("store-path", "", "Override store path")
	IntervalFlag   = flag.Int("interval-ms", 0, "Override polling interval in milliseconds")
	VerboseFlag    = flag.Bool("verbose", false, "Enable debug logging")
)

// Config is the global configuration, populated by Load
var Config = &Configuration{
	Source: SourceConfiguration{
		Kind:       SourceREST,
		PageSize:   100,
		IDColumn:   "id",
		MaxRetries: 3,
	},

	Store: StoreConfiguration{
		Path:              "gridwatch-state",
		CompressThreshold: 4096, // Snapshots below this stay uncompressed
	},

	Watch: WatchConfiguration{
		IntervalMS:     5000,  // One pipeline run every 5 seconds
		FetchTimeoutMS: 30000, // Whole-tick fetch deadline
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
		Address: "0.0.0.0",
		Port:    9090,
	},

	Admin: AdminConfiguration{
		Enabled: true,
		Address: "127.0.0.1",
		Port:    8980,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *StorePathFlag != "" {
		Config.Store.Path = *StorePathFlag
	}
	if *IntervalFlag != 0 {
		Config.Watch.IntervalMS = *IntervalFlag
	}
	if *VerboseFlag {
		Config.Logging.Verbose = true
	}

	// Auto-generate connector ID if not set
	if Config.ConnectorID == 0 {
		var err error
		Config.ConnectorID, err = generateConnectorID()
		if err != nil {
			return fmt.Errorf("failed to generate connector ID: %w", err)
		}
		log.Info().Uint64("connector_id", Config.ConnectorID).Msg("Auto-generated connector ID")
	}

	return nil
}

// generateConnectorID creates a stable connector ID based on machine ID
func generateConnectorID() (uint64, error) {
	id, err := machineid.ProtectedID("gridwatch")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Watch.IntervalMS < 100 {
		return fmt.Errorf("polling interval must be >= 100ms, got %dms", Config.Watch.IntervalMS)
	}

	switch Config.Source.Kind {
	case SourceREST:
		if Config.Source.BaseURL == "" {
			return fmt.Errorf("rest source requires base_url")
		}
	case SourceSQL:
		if Config.Source.DSN == "" {
			return fmt.Errorf("sql source requires dsn")
		}
		if Config.Source.Driver != "sqlite3" && Config.Source.Driver != "mysql" {
			return fmt.Errorf("unsupported sql driver: %q", Config.Source.Driver)
		}
	default:
		return fmt.Errorf("unknown source kind: %q", Config.Source.Kind)
	}

	if Config.Source.PageSize < 1 {
		return fmt.Errorf("page size must be >= 1")
	}

	for i, sink := range Config.Sinks {
		switch sink.Kind {
		case "nats":
			if sink.NatsURL == "" {
				return fmt.Errorf("sink[%d]: nats sink requires nats_url", i)
			}
		case "kafka":
			if len(sink.Brokers) == 0 {
				return fmt.Errorf("sink[%d]: kafka sink requires brokers", i)
			}
		case "log":
		default:
			return fmt.Errorf("sink[%d]: unknown sink kind: %q", i, sink.Kind)
		}
	}

	if Config.Prometheus.Enabled && (Config.Prometheus.Port < 1 || Config.Prometheus.Port > 65535) {
		return fmt.Errorf("invalid prometheus port: %d", Config.Prometheus.Port)
	}
	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	return nil
}
