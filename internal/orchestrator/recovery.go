package orchestrator

import (
	"context"

	"github.com/kelhray/dispatch/internal/log"
	"github.com/kelhray/dispatch/pkg/models"
)

// RecoverDisconnected returns a task held by a vanished agent to the pending
// queue, then runs one queue pass so the task can land on another agent right
// away. The registry calls this when a health sweep takes an agent offline or
// the agent deregisters while holding work.
//
// Any still-running session is deliberately left alone. The session record
// stays linked to the task for the audit trail, but the task drops its session
// reference, so a late outcome from the orphaned session is ignored by
// CompleteTask's staleness guard.
func (o *Orchestrator) RecoverDisconnected(agentID, taskID string) {
	if !o.requeueTask(agentID, taskID) {
		return
	}
	if _, err := o.ProcessNextTask(context.Background()); err != nil {
		log.GetLogger().Warnf("[orchestrator] queue pass after recovering %s: %v", taskID, err)
	}
}

// requeueTask resets an assigned or in-progress task back to pending. The
// task is re-read under its lock first: if it already reached a terminal
// state, or was somehow requeued, nothing happens.
func (o *Orchestrator) requeueTask(agentID, taskID string) bool {
	unlock := o.locks.lock(taskID)
	defer unlock()

	logger := log.GetLogger()
	task, err := o.store.GetTask(taskID)
	if err != nil {
		logger.Errorf("[orchestrator] recover task %s from agent %s: %v", taskID, agentID, err)
		return false
	}
	if task.Status != models.TaskStatusAssigned && task.Status != models.TaskStatusInProgress {
		logger.Debugf("[orchestrator] task %s is %s, no recovery needed", taskID, task.Status)
		return false
	}

	now := o.now()
	task.Status = models.TaskStatusPending
	task.AssignedTo = ""
	task.SessionID = ""
	task.Progress = 0
	task.StartedAt = nil
	task.UpdatedAt = now
	if err := o.store.UpdateTask(task); err != nil {
		logger.Errorf("[orchestrator] requeue task %s: %v", taskID, err)
		return false
	}

	logger.Warnf("[orchestrator] agent %s disconnected, task %s returned to queue", agentID, taskID)
	o.emitEvent(Event{
		Type:      EventTaskRequeued,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		AgentID:   agentID,
		Message:   "agent disconnected",
		Timestamp: now,
	})
	return true
}
