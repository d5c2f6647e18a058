// Package server is the HTTP adapter: a thin REST surface over the
// orchestrator, repair service and health checker.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"TradeStore/internal/ingest"
	"TradeStore/internal/observability"
	"TradeStore/internal/repair"
)

// Server serves the trade REST API.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// Deps holds everything the handlers need.
type Deps struct {
	Ingest *ingest.Service
	Repair *repair.Service
	Health *observability.HealthChecker
}

// New builds the HTTP server with all routes registered.
func New(addr string, deps Deps, log zerolog.Logger) *Server {
	h := &handlers{ingest: deps.Ingest, repair: deps.Repair, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/trades", h.ingestTrade)
	mux.HandleFunc("GET /api/trades/{id}", h.getTrade)
	mux.HandleFunc("GET /api/trades/{id}/history", h.getHistory)
	mux.HandleFunc("GET /api/trades/{id}/max-version", h.getMaxVersion)

	if deps.Repair != nil {
		mux.HandleFunc("GET /api/repair/failed", h.listFailed)
		mux.HandleFunc("GET /api/repair/failed/{id}", h.getFailed)
		mux.HandleFunc("POST /api/repair/failed/{id}/resubmit", h.resubmit)
	}

	if deps.Health != nil {
		mux.HandleFunc("GET /healthz", deps.Health.LivenessHandler)
		mux.HandleFunc("GET /readyz", deps.Health.ReadinessHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Handler exposes the route mux. Test use.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
