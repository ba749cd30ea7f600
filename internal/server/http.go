package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Router returns the daemon's HTTP handler: the JSON-RPC WebSocket
// endpoint, behind the bearer token, and Prometheus metrics if a
// collector is configured.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Handle("/jsonrpc/ws", s.authenticate(http.HandlerFunc(s.handleWebSocket)))
	return r
}
