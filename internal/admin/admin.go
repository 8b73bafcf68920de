// Package admin is a small introspection HTTP server, entirely
// separate from the proxy's hand-rolled codec path: it serves
// /healthz, /upstreams, and /metrics over ordinary net/http, routed
// with github.com/go-chi/chi/v5. It is optional and should be bound
// to localhost unless the operator has a reason to expose it.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/balancebeam/balancebeam/internal/upstream"
)

// Server is the admin HTTP server.
type Server struct {
	Pool *upstream.Pool
}

// Handler builds the chi router for the admin server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/upstreams", s.handleUpstreams)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type upstreamStatus struct {
	Addr  string `json:"addr"`
	Alive bool   `json:"alive"`
}

func (s *Server) handleUpstreams(w http.ResponseWriter, _ *http.Request) {
	statuses := make([]upstreamStatus, 0, s.Pool.Len())
	for i := 0; i < s.Pool.Len(); i++ {
		h := s.Pool.Host(i)
		statuses = append(statuses, upstreamStatus{Addr: h.Addr, Alive: h.Alive()})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statuses)
}
