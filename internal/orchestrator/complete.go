package orchestrator

import (
	"context"
	"strings"

	"github.com/kelhray/dispatch/internal/log"
	"github.com/kelhray/dispatch/internal/monitor"
	"github.com/kelhray/dispatch/pkg/models"
)

// learningMarkers are the substrings that flag an output line as worth
// persisting as a learning. Matching is case-insensitive.
var learningMarkers = []string{"lesson", "note:", "learning:"}

// CompleteTask finalizes a task from a session outcome. It is the monitor's
// completion callback and must stay idempotent: a duplicate delivery, or a
// late delivery from an orphaned session whose task was already recovered and
// reassigned, is silently dropped.
func (o *Orchestrator) CompleteTask(taskID, sessionID string, outcome monitor.Outcome) {
	if !o.finalizeTask(taskID, sessionID, outcome) {
		return
	}
	// One queue pass per completion keeps the freed agent fed.
	if _, err := o.ProcessNextTask(context.Background()); err != nil {
		log.GetLogger().Warnf("[orchestrator] queue pass after completing %s: %v", taskID, err)
	}
}

// finalizeTask records the terminal outcome under the task lock. Returns true
// if the task was finalized by this call.
func (o *Orchestrator) finalizeTask(taskID, sessionID string, outcome monitor.Outcome) bool {
	unlock := o.locks.lock(taskID)
	defer unlock()

	logger := log.GetLogger()
	task, err := o.store.GetTask(taskID)
	if err != nil {
		logger.Errorf("[orchestrator] complete task %s: %v", taskID, err)
		return false
	}
	if task.Status.Terminal() {
		logger.Debugf("[orchestrator] task %s already terminal, dropping completion from session %s", taskID, sessionID)
		return false
	}
	if task.Status != models.TaskStatusInProgress || task.SessionID != sessionID {
		logger.Debugf("[orchestrator] task %s moved on from session %s, dropping completion", taskID, sessionID)
		return false
	}

	agentID := task.AssignedTo
	now := o.now()

	if outcome.Success {
		task.Status = models.TaskStatusCompleted
		task.Progress = 100
		task.Result = &models.TaskResult{Success: true, Summary: "completed successfully", Output: outcome.Output}
	} else {
		task.Status = models.TaskStatusFailed
		errMsg := outcome.Error
		if errMsg == "" {
			errMsg = "session failed without error detail"
		}
		task.Error = errMsg
		task.Result = &models.TaskResult{Success: false, Summary: "session failed", Output: outcome.Output}
	}
	task.AssignedTo = ""
	task.CompletedAt = &now
	task.UpdatedAt = now
	if err := o.store.UpdateTask(task); err != nil {
		logger.Errorf("[orchestrator] persist completion for task %s: %v", taskID, err)
		return false
	}

	if agentID != "" {
		o.releaseAgent(agentID, task, outcome.Success)
	}
	if outcome.Success {
		o.captureLearnings(task, agentID, outcome.Output)
	}

	eventType := EventTaskCompleted
	if !outcome.Success {
		eventType = EventTaskFailed
	}
	logger.Infof("[orchestrator] task %s finished: %s", task.ID, task.Status)
	o.emitEvent(Event{
		Type:      eventType,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		AgentID:   agentID,
		SessionID: sessionID,
		Timestamp: now,
	})
	return true
}

// releaseAgent returns the agent to idle and folds the finished task into its
// stats. The idle transition is skipped if the agent no longer holds this
// task, which happens when a health sweep already took it offline.
func (o *Orchestrator) releaseAgent(agentID string, task *models.Task, success bool) {
	logger := log.GetLogger()

	agent, err := o.registry.Get(agentID)
	if err != nil {
		logger.Warnf("[orchestrator] release agent %s: %v", agentID, err)
		return
	}
	if agent.CurrentTaskID == task.ID {
		if _, err := o.registry.SetStatus(agentID, models.AgentStatusIdle, nil); err != nil {
			logger.Warnf("[orchestrator] free agent %s: %v", agentID, err)
		}
	}

	var durationMs float64
	if task.StartedAt != nil && task.CompletedAt != nil {
		durationMs = float64(task.CompletedAt.Sub(*task.StartedAt).Milliseconds())
	}
	if err := o.registry.RecordOutcome(agentID, durationMs, success); err != nil {
		logger.Warnf("[orchestrator] record outcome for agent %s: %v", agentID, err)
	}
}

// captureLearnings scans a successful session's output for lines the agent
// flagged as lessons and persists each as a learning record. Capture failures
// are logged and never affect the task outcome.
func (o *Orchestrator) captureLearnings(task *models.Task, agentID, output string) {
	if output == "" {
		return
	}
	now := o.now()
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !isLearningLine(trimmed) {
			continue
		}
		learning := &models.Learning{
			ID:        models.NewLearningID(),
			TaskID:    task.ID,
			AgentID:   agentID,
			Text:      trimmed,
			CreatedAt: now,
		}
		if err := o.store.CreateLearning(learning); err != nil {
			log.GetLogger().Warnf("[orchestrator] persist learning from task %s: %v", task.ID, err)
		}
	}
}

func isLearningLine(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range learningMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
