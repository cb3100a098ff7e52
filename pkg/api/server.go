package api

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/cluso-failover/pkg/coordinator"
	"github.com/dd0wney/cluso-failover/pkg/health"
	"github.com/dd0wney/cluso-failover/pkg/logging"
	"github.com/dd0wney/cluso-failover/pkg/metrics"
	"github.com/dd0wney/cluso-failover/pkg/store"
)

// Server exposes the coordinator operations over HTTP. The wire form is this
// repository's transport, the semantics live in the coordinator.
type Server struct {
	coordinator *coordinator.Coordinator
	store       store.Store
	checker     *health.Checker
	logger      logging.Logger
	metrics     *metrics.Registry
}

// NewServer creates the API server
func NewServer(c *coordinator.Coordinator, st store.Store, checker *health.Checker, logger logging.Logger) *Server {
	return &Server{
		coordinator: c,
		store:       st,
		checker:     checker,
		logger:      logger.With(logging.Component("api")),
		metrics:     metrics.DefaultRegistry(),
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/nodes", s.handleRegisterNode)
	mux.HandleFunc("POST /v1/nodes/active", s.handleNodeActive)
	mux.HandleFunc("DELETE /v1/nodes/{id}", s.handleRemoveNode)
	mux.HandleFunc("PUT /v1/nodes/{id}/replication-settings", s.handleReplicationSettings)

	mux.HandleFunc("GET /v1/formations/{formation}/nodes", s.handleGetNodes)
	mux.HandleFunc("GET /v1/formations/{formation}/groups/{group}/primary", s.handleGetPrimary)
	mux.HandleFunc("GET /v1/formations/{formation}/events", s.handleGetEvents)

	mux.Handle("GET /health", s.checker.Handler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(
		s.metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{}))

	return s.withRequestID(s.withMetrics(mux))
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
