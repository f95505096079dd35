// Package admin exposes connector status over HTTP for operators: last tick
// stats, watched tables, reconciliation buffer contents and Prometheus
// metrics.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gridwatch/gridwatch/telemetry"
	"github.com/gridwatch/gridwatch/watch"
	"github.com/rs/zerolog/log"
)

// Server serves the admin API for one connector.
type Server struct {
	connector *watch.Connector
	httpSrv   *http.Server
}

// NewServer creates an admin server bound to addr (host:port).
func NewServer(connector *watch.Connector, addr string) *Server {
	s := &Server{connector: connector}

	r := chi.NewRouter()
	r.Get("/status", s.handleStatus)
	r.Get("/tables", s.handleTables)
	r.Get("/buffer/{table}", s.handleBuffer)

	mux := http.NewServeMux()
	mux.Handle("/admin/", http.StripPrefix("/admin", r))
	if metrics := telemetry.GetMetricsHandler(); metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("admin listen on %s: %w", s.httpSrv.Addr, err)
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Admin server failed")
		}
	}()

	log.Info().Str("addr", s.httpSrv.Addr).Msg("Admin endpoint enabled")
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the admin HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, s.connector.LastRun())
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, map[string]interface{}{
		"tables": s.connector.Tables(),
	})
}

func (s *Server) handleBuffer(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if table == "" {
		writeErrorResponse(w, http.StatusBadRequest, "table name is required")
		return
	}

	pending, err := s.connector.PendingForTable(table)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSONResponse(w, map[string]interface{}{
		"table":   table,
		"pending": pending,
	})
}

func writeJSONResponse(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode admin response")
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
