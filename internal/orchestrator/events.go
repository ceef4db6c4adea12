// Package orchestrator coordinates tasks, agents, and execution sessions.
package orchestrator

import "time"

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventTaskCreated indicates a task was created and queued.
	EventTaskCreated EventType = "task_created"
	// EventTaskAssigned indicates a task was matched to an agent.
	EventTaskAssigned EventType = "task_assigned"
	// EventTaskStarted indicates a task's execution session was spawned.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed.
	EventTaskFailed EventType = "task_failed"
	// EventTaskCancelled indicates a task was cancelled.
	EventTaskCancelled EventType = "task_cancelled"
	// EventTaskRequeued indicates disconnect recovery returned a task to the queue.
	EventTaskRequeued EventType = "task_requeued"
)

// Event represents an event emitted by the orchestrator. Consumers (the admin
// surface, the daemon log tail) read these from the Events channel.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task.
	TaskID string
	// TaskTitle is the title of the related task, if applicable.
	TaskTitle string
	// AgentID is the ID of the related agent, if applicable.
	AgentID string
	// SessionID is the ID of the related session, if applicable.
	SessionID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// emitEvent sends an event to the events channel.
func (o *Orchestrator) emitEvent(event Event) {
	select {
	case o.events <- event:
	default:
		// Channel full, drop event to avoid blocking
	}
}
