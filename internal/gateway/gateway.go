// Package gateway defines the contract with the remote execution gateway and
// provides its HTTP client implementation.
package gateway

import (
	"context"

	"github.com/kelhray/dispatch/pkg/models"
)

// TaskDescriptor carries everything the gateway needs to spawn an execution.
type TaskDescriptor struct {
	// TaskID is the orchestrator-side task identifier.
	TaskID string `json:"task_id"`
	// AgentID is the agent the execution runs on behalf of.
	AgentID string `json:"agent_id"`
	// Title is the task title.
	Title string `json:"title"`
	// Description is the full task description.
	Description string `json:"description,omitempty"`
	// Type is the task type.
	Type models.TaskType `json:"type"`
	// Tags are the task's labels.
	Tags []string `json:"tags,omitempty"`
}

// PollResult is one observation of a remote session's state.
type PollResult struct {
	// Status is the session status mapped from the gateway's raw status.
	Status models.SessionStatus
	// Output is the output payload, present once the gateway reports one.
	Output string
	// Error is the error payload, present on failure.
	Error string
}

// Gateway is the execution gateway contract: spawn a remote session for a
// task, poll it until terminal, or request best-effort cancellation.
type Gateway interface {
	Spawn(ctx context.Context, desc TaskDescriptor) (string, error)
	Poll(ctx context.Context, externalID string) (*PollResult, error)
	Cancel(ctx context.Context, externalID string) error
}

// MapStatus converts a raw gateway status string into a session status.
// The gateway's "error" maps to failed. Anything unrecognized is treated as
// running, so new gateway states never wedge the monitor.
func MapStatus(raw string) models.SessionStatus {
	switch raw {
	case "starting":
		return models.SessionStatusStarting
	case "running":
		return models.SessionStatusRunning
	case "completed":
		return models.SessionStatusCompleted
	case "failed", "error":
		return models.SessionStatusFailed
	case "cancelled":
		return models.SessionStatusCancelled
	default:
		return models.SessionStatusRunning
	}
}
