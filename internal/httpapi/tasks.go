package httpapi

import (
	"net/http"

	"github.com/kelhray/dispatch/internal/orchestrator"
	"github.com/kelhray/dispatch/internal/state"
	"github.com/kelhray/dispatch/pkg/models"
)

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.CreateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.orch.CreateTask(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	f := state.TaskFilter{
		Status: models.TaskStatus(r.URL.Query().Get("status")),
		Type:   models.TaskType(r.URL.Query().Get("type")),
	}
	tasks, err := s.orch.ListTasks(f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.orch.GetTask(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id"`
	}
	// Empty body means "pick the best agent".
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	task, err := s.orch.AssignTask(r.Context(), r.PathValue("id"), req.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	task, err := s.orch.CancelTask(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleTaskSessions returns every session spawned for a task, including the
// bounded session log, oldest first.
func (s *Server) handleTaskSessions(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if _, err := s.orch.GetTask(taskID); err != nil {
		writeError(w, err)
		return
	}
	sessions, err := s.store.ListSessionsByTask(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions, "count": len(sessions)})
}

func (s *Server) handleDrainQueue(w http.ResponseWriter, r *http.Request) {
	task, err := s.orch.ProcessNextTask(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if task == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"assigned": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"assigned": true, "task": task})
}
