package orchestrator

import (
	"context"

	"github.com/kelhray/dispatch/internal/log"
	"github.com/kelhray/dispatch/internal/match"
	"github.com/kelhray/dispatch/internal/registry"
	"github.com/kelhray/dispatch/internal/state"
	"github.com/kelhray/dispatch/pkg/models"
)

const (
	minTitleLen       = 3
	minDescriptionLen = 10
)

// CreateTaskRequest carries the caller-supplied fields for a new task.
type CreateTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Priority    string   `json:"priority"`
	Tags        []string `json:"tags,omitempty"`
	// AutoAssign triggers an immediate assignment attempt after creation.
	AutoAssign bool `json:"auto_assign,omitempty"`
}

// CreateTask validates the request and persists a new pending task. Every
// validation violation is collected before returning, so the caller sees the
// full list rather than one problem at a time.
func (o *Orchestrator) CreateTask(ctx context.Context, req CreateTaskRequest) (*models.Task, error) {
	verr := &models.ValidationError{}
	if len(req.Title) < minTitleLen {
		verr.Add("title must be at least %d characters", minTitleLen)
	}
	if len(req.Description) < minDescriptionLen {
		verr.Add("description must be at least %d characters", minDescriptionLen)
	}
	taskType := models.TaskType(req.Type)
	if !taskType.Valid() {
		verr.Add("unknown task type %q", req.Type)
	}
	priority := models.Priority(req.Priority)
	if req.Priority == "" {
		priority = models.PriorityMedium
	} else if !priority.Valid() {
		verr.Add("unknown priority %q", req.Priority)
	}
	if verr.HasViolations() {
		return nil, verr
	}

	now := o.now()
	task := &models.Task{
		ID:          models.NewTaskID(),
		Title:       req.Title,
		Description: req.Description,
		Type:        taskType,
		Status:      models.TaskStatusPending,
		Priority:    priority,
		Tags:        req.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.store.CreateTask(task); err != nil {
		return nil, err
	}

	log.GetLogger().Infof("[orchestrator] created task %s (%s, %s): %s", task.ID, task.Type, task.Priority, task.Title)
	o.emitEvent(Event{
		Type:      EventTaskCreated,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		Timestamp: now,
	})

	if req.AutoAssign {
		return o.AssignTask(ctx, task.ID, "")
	}
	return task, nil
}

// AssignTask matches a pending task to an agent and starts execution. With an
// empty agentID the best-scoring capable idle agent is selected; a specific
// agentID pins the assignment to that agent. If the task is no longer pending
// the current task is returned unchanged. If no agent qualifies the task stays
// pending and nil error is returned: an empty fleet is a queueing situation,
// not a failure.
func (o *Orchestrator) AssignTask(ctx context.Context, taskID, agentID string) (*models.Task, error) {
	unlock := o.locks.lock(taskID)
	defer unlock()

	task, err := o.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusPending {
		return task, nil
	}

	agent, err := o.resolveAgent(task, agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		log.GetLogger().Debugf("[orchestrator] no agent available for task %s, staying queued", task.ID)
		return task, nil
	}

	task.Status = models.TaskStatusAssigned
	task.AssignedTo = agent.ID
	task.UpdatedAt = o.now()
	if err := o.store.UpdateTask(task); err != nil {
		return nil, err
	}
	if _, err := o.registry.SetStatus(agent.ID, models.AgentStatusBusy, &registry.Meta{TaskID: task.ID}); err != nil {
		return nil, err
	}

	log.GetLogger().Infof("[orchestrator] assigned task %s to agent %s (%s)", task.ID, agent.ID, agent.Name)
	o.emitEvent(Event{
		Type:      EventTaskAssigned,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		AgentID:   agent.ID,
		Timestamp: task.UpdatedAt,
	})

	return o.startLocked(ctx, task, agent.ID)
}

// resolveAgent picks the agent for a task. An explicit agentID must name an
// existing idle agent capable of the task's type; otherwise the matcher
// selects over the idle fleet and may come back empty-handed.
func (o *Orchestrator) resolveAgent(task *models.Task, agentID string) (*models.Agent, error) {
	if agentID != "" {
		agent, err := o.registry.Get(agentID)
		if err != nil {
			return nil, err
		}
		verr := &models.ValidationError{}
		if agent.Status != models.AgentStatusIdle {
			verr.Add("agent %s is %s, not idle", agent.ID, agent.Status)
		}
		if !match.CanHandle(agent, task.Type) {
			verr.Add("agent %s cannot handle %s tasks", agent.ID, task.Type)
		}
		if verr.HasViolations() {
			return nil, verr
		}
		return agent, nil
	}

	agents, err := o.registry.List(state.AgentFilter{Status: models.AgentStatusIdle})
	if err != nil {
		return nil, err
	}
	return match.SelectBestAgent(agents, task), nil
}

// StartTask moves an assigned task into execution.
func (o *Orchestrator) StartTask(ctx context.Context, taskID string) (*models.Task, error) {
	unlock := o.locks.lock(taskID)
	defer unlock()

	task, err := o.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusAssigned || task.AssignedTo == "" {
		verr := &models.ValidationError{}
		verr.Add("task %s is %s, only assigned tasks can start", task.ID, task.Status)
		return nil, verr
	}
	return o.startLocked(ctx, task, task.AssignedTo)
}

// startLocked spawns the execution session for an assigned task. The caller
// holds the task lock. A failed spawn is the one place where the agent-busy
// side effect rolls back immediately: no session exists yet, so the agent goes
// straight back to idle and the task is marked failed.
func (o *Orchestrator) startLocked(ctx context.Context, task *models.Task, agentID string) (*models.Task, error) {
	now := o.now()
	task.Status = models.TaskStatusInProgress
	task.StartedAt = &now
	task.Progress = 10
	task.UpdatedAt = now
	if err := o.store.UpdateTask(task); err != nil {
		return nil, err
	}

	sess, err := o.monitor.StartSession(ctx, task, agentID)
	if err != nil {
		log.GetLogger().Errorf("[orchestrator] spawn session for task %s: %v", task.ID, err)
		failedAt := o.now()
		task.Status = models.TaskStatusFailed
		task.AssignedTo = ""
		task.Error = err.Error()
		task.Result = &models.TaskResult{Success: false, Summary: "failed to spawn execution session"}
		task.CompletedAt = &failedAt
		task.UpdatedAt = failedAt
		if uerr := o.store.UpdateTask(task); uerr != nil {
			log.GetLogger().Errorf("[orchestrator] persist spawn failure for task %s: %v", task.ID, uerr)
		}
		if _, serr := o.registry.SetStatus(agentID, models.AgentStatusIdle, nil); serr != nil {
			log.GetLogger().Errorf("[orchestrator] free agent %s after spawn failure: %v", agentID, serr)
		}
		o.emitEvent(Event{
			Type:      EventTaskFailed,
			TaskID:    task.ID,
			TaskTitle: task.Title,
			AgentID:   agentID,
			Error:     err,
			Timestamp: failedAt,
		})
		return task, err
	}

	task.SessionID = sess.ID
	task.UpdatedAt = o.now()
	if err := o.store.UpdateTask(task); err != nil {
		return nil, err
	}
	if _, err := o.registry.SetStatus(agentID, models.AgentStatusBusy, &registry.Meta{TaskID: task.ID, SessionID: sess.ID}); err != nil {
		log.GetLogger().Warnf("[orchestrator] attach session to agent %s: %v", agentID, err)
	}

	o.emitEvent(Event{
		Type:      EventTaskStarted,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		AgentID:   agentID,
		SessionID: sess.ID,
		Timestamp: task.UpdatedAt,
	})
	return task, nil
}

// CancelTask cancels a task from any non-terminal state. The remote session,
// if one is running, is cancelled best-effort: a gateway error is logged and
// local cancellation proceeds regardless. Cancelling an already-terminal task
// is a no-op returning the task as-is.
func (o *Orchestrator) CancelTask(ctx context.Context, taskID, reason string) (*models.Task, error) {
	unlock := o.locks.lock(taskID)
	defer unlock()

	task, err := o.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return task, nil
	}

	agentID := task.AssignedTo
	sessionID := task.SessionID

	if sessionID != "" {
		if sess, serr := o.store.GetSession(sessionID); serr == nil && sess.ExternalID != "" {
			if cerr := o.gw.Cancel(ctx, sess.ExternalID); cerr != nil {
				log.GetLogger().Warnf("[orchestrator] gateway cancel for task %s: %v", task.ID, cerr)
			}
		}
	}

	now := o.now()
	task.Status = models.TaskStatusCancelled
	task.AssignedTo = ""
	task.SessionID = ""
	if reason == "" {
		reason = "cancelled by operator"
	}
	task.Error = reason
	task.CompletedAt = &now
	task.UpdatedAt = now
	if err := o.store.UpdateTask(task); err != nil {
		return nil, err
	}

	if sessionID != "" {
		o.monitor.Teardown(sessionID)
	}
	if agentID != "" {
		if _, serr := o.registry.SetStatus(agentID, models.AgentStatusIdle, nil); serr != nil {
			log.GetLogger().Warnf("[orchestrator] free agent %s after cancel: %v", agentID, serr)
		}
	}

	log.GetLogger().Infof("[orchestrator] cancelled task %s: %s", task.ID, reason)
	o.emitEvent(Event{
		Type:      EventTaskCancelled,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		AgentID:   agentID,
		Message:   reason,
		Timestamp: now,
	})
	return task, nil
}
