// Package registry manages the agent fleet: registration, status transitions,
// performance stats, heartbeats, and the health sweep that declares
// unresponsive agents offline.
package registry

import (
	"fmt"
	"time"

	"github.com/kelhray/dispatch/internal/log"
	"github.com/kelhray/dispatch/internal/state"
	"github.com/kelhray/dispatch/pkg/models"
)

// RecoveryFunc is invoked when an agent holding a task goes offline or
// deregisters. The orchestrator installs its disconnect-recovery logic here.
type RecoveryFunc func(agentID, taskID string)

// Meta carries the work attachment when an agent is set busy.
type Meta struct {
	// TaskID is the task the agent now holds.
	TaskID string
	// SessionID is the execution session attached to that task, if any.
	SessionID string
}

// Registry owns agent records in the store.
type Registry struct {
	store   state.Store
	recover RecoveryFunc
	// now is the clock, replaceable in tests.
	now func() time.Time
}

// New creates a Registry backed by the given store.
func New(store state.Store) *Registry {
	return &Registry{
		store: store,
		now:   time.Now,
	}
}

// SetRecoveryHandler installs the disconnect-recovery callback. It must be
// set before the health sweep runs; a sweep without a handler only marks
// agents offline.
func (r *Registry) SetRecoveryHandler(fn RecoveryFunc) {
	r.recover = fn
}

// SetClock overrides the registry's clock. Used by tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Register creates a new agent in idle status with zero stats. The success
// rate starts at 100 as an optimistic prior, so a fresh agent is immediately
// eligible for work.
func (r *Registry) Register(name string, caps []models.Capability, cfg models.AgentConfig) (*models.Agent, error) {
	if name == "" {
		return nil, &models.ValidationError{Violations: []string{"agent name is required"}}
	}
	if len(caps) == 0 {
		return nil, &models.ValidationError{Violations: []string{"at least one capability is required"}}
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 1
	}

	now := r.now()
	agent := &models.Agent{
		ID:           models.NewAgentID(),
		Name:         name,
		Status:       models.AgentStatusIdle,
		Capabilities: caps,
		SuccessRate:  100,
		LastActiveAt: now,
		CreatedAt:    now,
		Config:       cfg,
	}
	if err := r.store.CreateAgent(agent); err != nil {
		return nil, err
	}
	log.GetLogger().Infof("[registry] registered agent %s (%s) with capabilities %v", agent.ID, name, caps)
	return agent, nil
}

// Get returns the agent with the given ID.
func (r *Registry) Get(agentID string) (*models.Agent, error) {
	return r.store.GetAgent(agentID)
}

// List returns agents matching the filter.
func (r *Registry) List(f state.AgentFilter) ([]*models.Agent, error) {
	return r.store.ListAgents(f)
}

// SetStatus transitions an agent to the given status and refreshes its
// last-active timestamp. Setting a non-busy status clears the agent's current
// task and session; setting busy requires meta naming the held task.
func (r *Registry) SetStatus(agentID string, status models.AgentStatus, meta *Meta) (*models.Agent, error) {
	if !status.Valid() {
		return nil, &models.ValidationError{Violations: []string{fmt.Sprintf("unknown agent status %q", status)}}
	}

	agent, err := r.store.GetAgent(agentID)
	if err != nil {
		return nil, err
	}

	agent.Status = status
	agent.LastActiveAt = r.now()
	if status == models.AgentStatusBusy {
		if meta == nil || meta.TaskID == "" {
			return nil, &models.ValidationError{Violations: []string{"busy status requires a task id"}}
		}
		agent.CurrentTaskID = meta.TaskID
		agent.CurrentSessionID = meta.SessionID
	} else {
		agent.CurrentTaskID = ""
		agent.CurrentSessionID = ""
	}

	if err := r.store.UpdateAgent(agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// RecordOutcome folds a finished task into the agent's stats and refreshes
// its last-active timestamp.
func (r *Registry) RecordOutcome(agentID string, durationMs float64, success bool) error {
	agent, err := r.store.GetAgent(agentID)
	if err != nil {
		return err
	}
	agent.RecordOutcome(durationMs, success)
	agent.LastActiveAt = r.now()
	return r.store.UpdateAgent(agent)
}

// Heartbeat refreshes the agent's last-active timestamp and nothing else.
func (r *Registry) Heartbeat(agentID string) error {
	agent, err := r.store.GetAgent(agentID)
	if err != nil {
		return err
	}
	agent.LastActiveAt = r.now()
	return r.store.UpdateAgent(agent)
}

// HealthSweep marks every agent whose last activity is older than the
// threshold as offline and triggers disconnect recovery for any task such an
// agent was holding. Per-agent failures are logged and the sweep continues,
// so one bad record never aborts the pass. Returns the number of agents
// taken offline.
func (r *Registry) HealthSweep(threshold time.Duration) int {
	logger := log.GetLogger()
	agents, err := r.store.ListAgents(state.AgentFilter{})
	if err != nil {
		logger.Errorf("[registry] health sweep: list agents: %v", err)
		return 0
	}

	now := r.now()
	offlined := 0
	for _, agent := range agents {
		if agent.Status == models.AgentStatusOffline {
			continue
		}
		if now.Sub(agent.LastActiveAt) <= threshold {
			continue
		}

		heldTask := agent.CurrentTaskID
		agent.Status = models.AgentStatusOffline
		agent.CurrentTaskID = ""
		agent.CurrentSessionID = ""
		if err := r.store.UpdateAgent(agent); err != nil {
			logger.Errorf("[registry] health sweep: mark %s offline: %v", agent.ID, err)
			continue
		}
		offlined++
		logger.Warnf("[registry] agent %s (%s) missed the health threshold, marked offline", agent.ID, agent.Name)

		// The recovery handler re-reads the task before resetting it, so a
		// task that completed while the sweep was running is left alone.
		if heldTask != "" && r.recover != nil {
			r.recover(agent.ID, heldTask)
		}
	}
	return offlined
}

// Deregister removes an agent. If the agent holds a task, disconnect
// recovery runs first so the task returns to the pending queue.
func (r *Registry) Deregister(agentID string) error {
	agent, err := r.store.GetAgent(agentID)
	if err != nil {
		return err
	}

	if agent.CurrentTaskID != "" && r.recover != nil {
		r.recover(agent.ID, agent.CurrentTaskID)
	}

	if err := r.store.DeleteAgent(agentID); err != nil {
		return err
	}
	log.GetLogger().Infof("[registry] deregistered agent %s (%s)", agent.ID, agent.Name)
	return nil
}
