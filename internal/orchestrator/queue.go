package orchestrator

import (
	"context"
	"sort"

	"github.com/kelhray/dispatch/internal/log"
	"github.com/kelhray/dispatch/internal/state"
	"github.com/kelhray/dispatch/pkg/models"
)

// ProcessNextTask drains at most one task from the pending queue. Pending
// tasks are ranked by priority score (declared weight plus capped age boost)
// and the first one an agent can actually take is assigned; the pass stops
// after that single assignment. Returns the assigned task, or nil when the
// queue is empty or no pending task found an agent.
func (o *Orchestrator) ProcessNextTask(ctx context.Context) (*models.Task, error) {
	pending, err := o.store.ListTasks(state.TaskFilter{Status: models.TaskStatusPending})
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	now := o.now()
	sort.Slice(pending, func(i, j int) bool {
		si, sj := pending[i].PriorityScore(now), pending[j].PriorityScore(now)
		if si != sj {
			return si > sj
		}
		return pending[i].ID < pending[j].ID
	})

	for _, candidate := range pending {
		task, err := o.AssignTask(ctx, candidate.ID, "")
		if err != nil {
			log.GetLogger().Warnf("[orchestrator] queue pass: assign task %s: %v", candidate.ID, err)
			continue
		}
		if task.Status != models.TaskStatusPending {
			return task, nil
		}
	}
	return nil, nil
}
