// Package httpapi exposes the admin HTTP surface: task and agent management,
// queue control, reports, and the issue webhook bridge.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kelhray/dispatch/internal/log"
	"github.com/kelhray/dispatch/internal/orchestrator"
	"github.com/kelhray/dispatch/internal/registry"
	"github.com/kelhray/dispatch/internal/state"
	"github.com/kelhray/dispatch/pkg/models"
)

// Server handles admin HTTP requests.
type Server struct {
	orch     *orchestrator.Orchestrator
	registry *registry.Registry
	store    state.Store
	// healthThreshold is the cutoff passed to manually triggered sweeps.
	healthThreshold time.Duration
}

// NewServer creates the admin API server.
func NewServer(orch *orchestrator.Orchestrator, reg *registry.Registry, store state.Store, healthThreshold time.Duration) *Server {
	return &Server{
		orch:            orch,
		registry:        reg,
		store:           store,
		healthThreshold: healthThreshold,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /tasks", s.handleCreateTask)
	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("POST /tasks/{id}/assign", s.handleAssignTask)
	mux.HandleFunc("POST /tasks/{id}/cancel", s.handleCancelTask)
	mux.HandleFunc("GET /tasks/{id}/sessions", s.handleTaskSessions)

	mux.HandleFunc("POST /agents", s.handleRegisterAgent)
	mux.HandleFunc("GET /agents", s.handleListAgents)
	mux.HandleFunc("GET /agents/{id}", s.handleGetAgent)
	mux.HandleFunc("POST /agents/{id}/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("POST /agents/{id}/status", s.handleAgentStatus)
	mux.HandleFunc("DELETE /agents/{id}", s.handleDeregisterAgent)
	mux.HandleFunc("POST /agents/sweep", s.handleSweep)

	mux.HandleFunc("POST /queue/drain", s.handleDrainQueue)
	mux.HandleFunc("GET /report", s.handleReport)

	mux.HandleFunc("POST /webhooks/issues", s.handleIssueWebhook)

	return logRequests(mux)
}

// logRequests logs every request at debug level.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.GetLogger().Debugf("[http] %s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("[http] encode response: %v", err)
	}
}

// writeError maps an error to its HTTP status and writes a JSON error body.
// Validation problems include the full violation list.
func writeError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":      "validation failed",
			"violations": verr.Violations,
		})
		return
	}
	var nferr *models.NotFoundError
	if errors.As(err, &nferr) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": nferr.Error()})
		return
	}
	var gerr *models.GatewayError
	if errors.As(err, &gerr) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": gerr.Error()})
		return
	}
	log.GetLogger().Errorf("[http] internal error: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// decodeBody parses a JSON request body into v.
func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &models.ValidationError{Violations: []string{"invalid JSON body: " + err.Error()}}
	}
	return nil
}
