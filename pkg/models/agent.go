package models

import "time"

// AgentStatus represents the current state of an agent.
type AgentStatus string

const (
	// AgentStatusIdle indicates the agent is available for work.
	AgentStatusIdle AgentStatus = "idle"
	// AgentStatusBusy indicates the agent is working on a task.
	AgentStatusBusy AgentStatus = "busy"
	// AgentStatusOffline indicates the agent stopped responding.
	AgentStatusOffline AgentStatus = "offline"
	// AgentStatusError indicates the agent is in an error state.
	AgentStatusError AgentStatus = "error"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusIdle, AgentStatusBusy, AgentStatusOffline, AgentStatusError:
		return true
	default:
		return false
	}
}

// Capability is a tag describing what kind of task an agent can perform.
// Capabilities share the task type domain, plus the generic fullstack tag.
type Capability string

const (
	CapabilityCode          Capability = "code"
	CapabilityBugfix        Capability = "bugfix"
	CapabilityReview        Capability = "review"
	CapabilityDeploy        Capability = "deploy"
	CapabilityResearch      Capability = "research"
	CapabilityDocumentation Capability = "documentation"
	CapabilityTest          Capability = "test"
	CapabilityMaintenance   Capability = "maintenance"
	// CapabilityFullstack satisfies most task types.
	CapabilityFullstack Capability = "fullstack"
)

// AgentConfig holds per-agent scheduling preferences.
type AgentConfig struct {
	// MaxConcurrentTasks limits how many tasks the agent may hold at once.
	MaxConcurrentTasks int `json:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
	// TaskTypes restricts the task types the agent accepts. Empty means all.
	TaskTypes []TaskType `json:"task_types,omitempty" yaml:"task_types"`
	// AutoAccept indicates the agent takes work without manual confirmation.
	AutoAccept bool `json:"auto_accept" yaml:"auto_accept"`
}

// Agent represents a worker capable of executing tasks.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// Name is the human-readable display name.
	Name string `json:"name"`
	// Status is the current state of the agent.
	Status AgentStatus `json:"status"`
	// Capabilities lists the kinds of tasks this agent can perform.
	Capabilities []Capability `json:"capabilities"`
	// CurrentTaskID is the task the agent is working on. Set iff status is busy.
	CurrentTaskID string `json:"current_task_id,omitempty"`
	// CurrentSessionID is the execution session attached to the current task.
	CurrentSessionID string `json:"current_session_id,omitempty"`
	// TasksCompleted is the cumulative count of successful tasks.
	TasksCompleted int `json:"tasks_completed"`
	// TasksFailed is the cumulative count of failed tasks.
	TasksFailed int `json:"tasks_failed"`
	// AvgDurationMs is the rolling average task duration in milliseconds.
	AvgDurationMs float64 `json:"avg_duration_ms"`
	// SuccessRate is completed/(completed+failed)*100. Fresh agents start at 100.
	SuccessRate float64 `json:"success_rate"`
	// LastActiveAt is the last time the agent did work or sent a heartbeat.
	LastActiveAt time.Time `json:"last_active_at"`
	// CreatedAt is when the agent registered.
	CreatedAt time.Time `json:"created_at"`
	// Config holds per-agent scheduling preferences.
	Config AgentConfig `json:"config"`
}

// HasCapability returns true if the agent declares the given capability.
func (a *Agent) HasCapability(c Capability) bool {
	for _, have := range a.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// AcceptsType returns true if the agent's config allows the given task type.
// An empty TaskTypes list accepts everything.
func (a *Agent) AcceptsType(t TaskType) bool {
	if len(a.Config.TaskTypes) == 0 {
		return true
	}
	for _, accepted := range a.Config.TaskTypes {
		if accepted == t {
			return true
		}
	}
	return false
}

// RecordOutcome folds one finished task into the agent's cumulative stats.
// The rolling average uses newAvg = (oldAvg*(n-1) + duration) / n where n is
// the new total task count.
func (a *Agent) RecordOutcome(durationMs float64, success bool) {
	if success {
		a.TasksCompleted++
	} else {
		a.TasksFailed++
	}
	n := float64(a.TasksCompleted + a.TasksFailed)
	a.AvgDurationMs = (a.AvgDurationMs*(n-1) + durationMs) / n
	a.SuccessRate = float64(a.TasksCompleted) / n * 100
}
