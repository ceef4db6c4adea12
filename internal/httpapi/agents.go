package httpapi

import (
	"net/http"

	"github.com/kelhray/dispatch/internal/registry"
	"github.com/kelhray/dispatch/internal/report"
	"github.com/kelhray/dispatch/internal/state"
	"github.com/kelhray/dispatch/pkg/models"
)

type registerAgentRequest struct {
	Name         string              `json:"name"`
	Capabilities []models.Capability `json:"capabilities"`
	Config       models.AgentConfig  `json:"config"`
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	agent, err := s.registry.Register(req.Name, req.Capabilities, req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	f := state.AgentFilter{Status: models.AgentStatus(r.URL.Query().Get("status"))}
	agents, err := s.registry.List(f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents, "count": len(agents)})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Heartbeat(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type agentStatusRequest struct {
	Status    string `json:"status"`
	TaskID    string `json:"task_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	var req agentStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	var meta *registry.Meta
	if req.TaskID != "" {
		meta = &registry.Meta{TaskID: req.TaskID, SessionID: req.SessionID}
	}
	agent, err := s.registry.SetStatus(r.PathValue("id"), models.AgentStatus(req.Status), meta)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleDeregisterAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Deregister(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	offlined := s.registry.HealthSweep(s.healthThreshold)
	writeJSON(w, http.StatusOK, map[string]int{"offlined": offlined})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := report.Generate(s.store)
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(rep.Render()))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
