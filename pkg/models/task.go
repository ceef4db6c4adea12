package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is queued and unassigned.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusAssigned indicates the task has an agent but work has not started.
	TaskStatusAssigned TaskStatus = "assigned"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled before completion.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are allowed from this status.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition returns true if moving from s to next is a legal transition.
// The state machine is pending -> assigned -> in_progress -> {completed|failed},
// with cancellation allowed from any non-terminal state and disconnect recovery
// allowed to move assigned/in_progress back to pending.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case TaskStatusAssigned:
		return s == TaskStatusPending
	case TaskStatusInProgress:
		return s == TaskStatusAssigned
	case TaskStatusCompleted, TaskStatusFailed:
		return s == TaskStatusInProgress
	case TaskStatusCancelled:
		return true
	case TaskStatusPending:
		return s == TaskStatusAssigned || s == TaskStatusInProgress
	default:
		return false
	}
}

// TaskType categorizes the kind of work a task represents.
type TaskType string

const (
	TaskTypeCode          TaskType = "code"
	TaskTypeBugfix        TaskType = "bugfix"
	TaskTypeReview        TaskType = "review"
	TaskTypeDeploy        TaskType = "deploy"
	TaskTypeResearch      TaskType = "research"
	TaskTypeDocumentation TaskType = "documentation"
	TaskTypeTest          TaskType = "test"
	TaskTypeMaintenance   TaskType = "maintenance"
)

// Valid returns true if the task type is a known value.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeCode, TaskTypeBugfix, TaskTypeReview, TaskTypeDeploy,
		TaskTypeResearch, TaskTypeDocumentation, TaskTypeTest, TaskTypeMaintenance:
		return true
	default:
		return false
	}
}

// Priority expresses how urgently a task should be scheduled.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Weight returns the numeric scheduling weight for the priority.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityCritical:
		return 100
	case PriorityHigh:
		return 50
	case PriorityMedium:
		return 25
	case PriorityLow:
		return 10
	default:
		return 0
	}
}

// TaskResult holds the outcome payload of a finished task.
type TaskResult struct {
	// Success indicates whether the task completed successfully.
	Success bool `json:"success"`
	// Summary is a short human-readable description of the outcome.
	Summary string `json:"summary,omitempty"`
	// Output is the raw output produced by the execution session.
	Output string `json:"output,omitempty"`
}

// Task represents a unit of work in the system.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Type categorizes the kind of work.
	Type TaskType `json:"type"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Priority is the declared urgency of the task.
	Priority Priority `json:"priority"`
	// AssignedTo is the ID of the agent working on this task.
	// It is set iff the status is assigned or in_progress.
	AssignedTo string `json:"assigned_to,omitempty"`
	// SessionID is the ID of the active execution session, if any.
	SessionID string `json:"session_id,omitempty"`
	// Progress is the completion percentage in [0,100].
	Progress int `json:"progress"`
	// Tags are free-form labels attached to the task.
	Tags []string `json:"tags,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task was last modified.
	UpdatedAt time.Time `json:"updated_at"`
	// StartedAt is when execution began, if it has.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Result is the outcome payload for completed or failed tasks.
	Result *TaskResult `json:"result,omitempty"`
	// Error contains the error message if the task failed or was cancelled.
	Error string `json:"error,omitempty"`
}

// AgeHours returns the task's age in hours at the given instant, capped at 24.
// The cap bounds the scheduling boost that very old tasks can accumulate.
func (t *Task) AgeHours(now time.Time) float64 {
	age := now.Sub(t.CreatedAt).Hours()
	if age < 0 {
		return 0
	}
	if age > 24 {
		return 24
	}
	return age
}

// PriorityScore ranks the task in the pending queue: declared priority weight
// plus the capped age boost. Higher runs first.
func (t *Task) PriorityScore(now time.Time) float64 {
	return t.Priority.Weight() + t.AgeHours(now)
}
