package models

import "time"

// Learning is one piece of knowledge extracted from a successful task's output.
// Learnings are persisted with their provenance for later analysis and for the
// periodic operational report.
type Learning struct {
	// ID is the unique identifier for this learning.
	ID string `json:"id"`
	// TaskID is the task whose output produced the learning.
	TaskID string `json:"task_id"`
	// AgentID is the agent that completed the task.
	AgentID string `json:"agent_id,omitempty"`
	// Text is the extracted learning line.
	Text string `json:"text"`
	// CreatedAt is when the learning was captured.
	CreatedAt time.Time `json:"created_at"`
}
