// Package report summarizes fleet activity: per-agent performance and the
// learnings captured from finished tasks.
package report

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kelhray/dispatch/internal/state"
	"github.com/kelhray/dispatch/pkg/models"
)

// DefaultLearningsLimit bounds how many recent learnings a report includes.
const DefaultLearningsLimit = 20

// AgentSummary is one agent's row in the report.
type AgentSummary struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	TasksCompleted int     `json:"tasks_completed"`
	TasksFailed    int     `json:"tasks_failed"`
	SuccessRate    float64 `json:"success_rate"`
	AvgDurationMs  float64 `json:"avg_duration_ms"`
}

// QueueSummary counts tasks per status.
type QueueSummary struct {
	Pending    int `json:"pending"`
	Assigned   int `json:"assigned"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// Report is a point-in-time summary of the whole system.
type Report struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Queue       QueueSummary       `json:"queue"`
	Agents      []AgentSummary     `json:"agents"`
	Learnings   []*models.Learning `json:"learnings,omitempty"`
}

// Generate builds a report from the store. Agents are ordered by completed
// task count so the busiest appear first.
func Generate(store state.Store) (*Report, error) {
	tasks, err := store.ListTasks(state.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	agents, err := store.ListAgents(state.AgentFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	learnings, err := store.ListLearnings(DefaultLearningsLimit)
	if err != nil {
		return nil, fmt.Errorf("listing learnings: %w", err)
	}

	r := &Report{GeneratedAt: time.Now(), Learnings: learnings}
	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusPending:
			r.Queue.Pending++
		case models.TaskStatusAssigned:
			r.Queue.Assigned++
		case models.TaskStatusInProgress:
			r.Queue.InProgress++
		case models.TaskStatusCompleted:
			r.Queue.Completed++
		case models.TaskStatusFailed:
			r.Queue.Failed++
		case models.TaskStatusCancelled:
			r.Queue.Cancelled++
		}
	}

	for _, a := range agents {
		r.Agents = append(r.Agents, AgentSummary{
			ID:             a.ID,
			Name:           a.Name,
			Status:         string(a.Status),
			TasksCompleted: a.TasksCompleted,
			TasksFailed:    a.TasksFailed,
			SuccessRate:    a.SuccessRate,
			AvgDurationMs:  a.AvgDurationMs,
		})
	}
	sort.Slice(r.Agents, func(i, j int) bool {
		if r.Agents[i].TasksCompleted != r.Agents[j].TasksCompleted {
			return r.Agents[i].TasksCompleted > r.Agents[j].TasksCompleted
		}
		return r.Agents[i].ID < r.Agents[j].ID
	})
	return r, nil
}

// Render formats the report as plain text.
func (r *Report) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dispatch report, generated %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(&b, "Queue: %d pending, %d assigned, %d in progress, %d completed, %d failed, %d cancelled\n\n",
		r.Queue.Pending, r.Queue.Assigned, r.Queue.InProgress,
		r.Queue.Completed, r.Queue.Failed, r.Queue.Cancelled)

	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tSTATUS\tDONE\tFAILED\tSUCCESS\tAVG MS")
	for _, a := range r.Agents {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.1f%%\t%.0f\n",
			a.Name, a.Status, a.TasksCompleted, a.TasksFailed, a.SuccessRate, a.AvgDurationMs)
	}
	w.Flush()

	if len(r.Learnings) > 0 {
		fmt.Fprintf(&b, "\nRecent learnings:\n")
		for _, l := range r.Learnings {
			fmt.Fprintf(&b, "  - %s (task %s)\n", l.Text, l.TaskID)
		}
	}
	return b.String()
}
