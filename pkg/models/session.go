package models

import "time"

// SessionStatus represents the current state of an execution session.
type SessionStatus string

const (
	// SessionStatusStarting indicates the session was requested but not yet running.
	SessionStatusStarting SessionStatus = "starting"
	// SessionStatusRunning indicates the remote execution is in flight.
	SessionStatusRunning SessionStatus = "running"
	// SessionStatusCompleted indicates the remote execution finished successfully.
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusFailed indicates the remote execution failed.
	SessionStatusFailed SessionStatus = "failed"
	// SessionStatusCancelled indicates the session was cancelled.
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusStarting, SessionStatusRunning, SessionStatusCompleted,
		SessionStatusFailed, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the session has reached a final state.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// MaxSessionLogEntries bounds the per-session log. Oldest entries drop first.
const MaxSessionLogEntries = 200

// SessionLogEntry is one timestamped line in a session's log.
type SessionLogEntry struct {
	// Time is when the entry was recorded.
	Time time.Time `json:"time"`
	// Message is the log line.
	Message string `json:"message"`
}

// Session represents one remote execution bound to a task/agent pair.
type Session struct {
	// ID is the unique identifier for this session.
	ID string `json:"id"`
	// TaskID is the task this session executes.
	TaskID string `json:"task_id"`
	// AgentID is the agent this session runs on behalf of.
	AgentID string `json:"agent_id"`
	// ExternalID is the gateway-side session identifier.
	ExternalID string `json:"external_id,omitempty"`
	// Status is the current state of the session.
	Status SessionStatus `json:"status"`
	// Log is the bounded append-only log of session events.
	Log []SessionLogEntry `json:"log,omitempty"`
	// StartedAt is when the session was created.
	StartedAt time.Time `json:"started_at"`
	// EndedAt is when the session reached a terminal state, if it has.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// Output is the output payload reported by the gateway.
	Output string `json:"output,omitempty"`
	// Error is the error payload reported by the gateway.
	Error string `json:"error,omitempty"`
}

// AppendLog adds a timestamped entry, dropping the oldest entry once the
// log exceeds MaxSessionLogEntries.
func (s *Session) AppendLog(now time.Time, message string) {
	s.Log = append(s.Log, SessionLogEntry{Time: now, Message: message})
	if len(s.Log) > MaxSessionLogEntries {
		s.Log = s.Log[len(s.Log)-MaxSessionLogEntries:]
	}
}
