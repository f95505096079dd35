package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridwatch/gridwatch/admin"
	"github.com/gridwatch/gridwatch/cfg"
	"github.com/gridwatch/gridwatch/sink"
	"github.com/gridwatch/gridwatch/source"
	"github.com/gridwatch/gridwatch/store"
	"github.com/gridwatch/gridwatch/telemetry"
	"github.com/gridwatch/gridwatch/watch"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("connector_id", cfg.Config.ConnectorID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("Gridwatch - Change Events Over Polled Tables")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()

	// State store
	st, err := openStore()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state store")
		return
	}
	defer st.Close()

	// Source client
	src, err := openSource()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize source client")
		return
	}
	defer src.Close()

	// Connector engine
	conn := watch.NewConnector(watch.ConnectorConfig{
		ConnectorID:  cfg.Config.ConnectorID,
		Source:       src,
		Store:        st,
		Interval:     time.Duration(cfg.Config.Watch.IntervalMS) * time.Millisecond,
		FetchTimeout: time.Duration(cfg.Config.Watch.FetchTimeoutMS) * time.Millisecond,
	})

	// Sinks subscribe before Start so the watched-table set is complete
	sinks, err := attachSinks(conn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to attach sinks")
		return
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				log.Warn().Err(err).Msg("Sink close failed")
			}
		}
	}()

	if len(conn.Tables()) == 0 {
		log.Warn().Msg("No tables watched - configure watch.tables and at least one sink")
	}

	// Admin endpoint
	if cfg.Config.Admin.Enabled {
		adminSrv := admin.NewServer(conn, fmt.Sprintf("%s:%d", cfg.Config.Admin.Address, cfg.Config.Admin.Port))
		if err := adminSrv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start admin server")
			return
		}
		defer adminSrv.Stop()
	}

	conn.Start()
	defer conn.Stop()

	log.Info().
		Uint64("connector_id", cfg.Config.ConnectorID).
		Str("source", string(cfg.Config.Source.Kind)).
		Strs("tables", conn.Tables()).
		Int("interval_ms", cfg.Config.Watch.IntervalMS).
		Msg("Connector is operational")

	// Keep running until signaled
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
}

func openStore() (store.Store, error) {
	if cfg.Config.Store.Path == "" {
		log.Warn().Msg("No store path configured - state will not survive restarts")
		return store.NewMemoryStore(), nil
	}
	return store.NewPebbleStore(cfg.Config.Store.Path, cfg.Config.Store.CompressThreshold)
}

func openSource() (source.Client, error) {
	switch cfg.Config.Source.Kind {
	case cfg.SourceREST:
		return source.NewRESTClient(source.RESTConfig{
			BaseURL:    cfg.Config.Source.BaseURL,
			Token:      cfg.Config.Source.Token,
			PageSize:   cfg.Config.Source.PageSize,
			MaxRetries: cfg.Config.Source.MaxRetries,
		})
	case cfg.SourceSQL:
		return source.NewSQLClient(source.SQLConfig{
			Driver:   cfg.Config.Source.Driver,
			DSN:      cfg.Config.Source.DSN,
			IDColumn: cfg.Config.Source.IDColumn,
			PageSize: cfg.Config.Source.PageSize,
		})
	default:
		return nil, fmt.Errorf("unknown source kind: %q", cfg.Config.Source.Kind)
	}
}

func attachSinks(conn *watch.Connector) ([]sink.Sink, error) {
	sinks := make([]sink.Sink, 0, len(cfg.Config.Sinks))
	for i, sc := range cfg.Config.Sinks {
		s, err := sink.New(sc)
		if err != nil {
			return sinks, fmt.Errorf("sink[%d]: %w", i, err)
		}

		name := fmt.Sprintf("sink%d-%s", i, sc.Kind)
		if err := sink.Attach(conn, s, name, sc, cfg.Config.Watch.Tables); err != nil {
			s.Close()
			return sinks, fmt.Errorf("sink[%d]: %w", i, err)
		}

		sinks = append(sinks, s)
		log.Info().Str("name", name).Str("kind", sc.Kind).Msg("Sink attached")
	}
	return sinks, nil
}
