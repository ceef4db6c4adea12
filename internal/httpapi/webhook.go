package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kelhray/dispatch/internal/log"
	"github.com/kelhray/dispatch/internal/orchestrator"
)

// issuePayload is the subset of an issue-tracker webhook we care about.
type issuePayload struct {
	Action string `json:"action"`
	Issue  struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	} `json:"issue"`
}

// handleIssueWebhook turns a newly opened issue into a pending task. The task
// type and priority are derived from the issue labels; unlabeled issues land
// as medium-priority code tasks.
func (s *Server) handleIssueWebhook(w http.ResponseWriter, r *http.Request) {
	var payload issuePayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if payload.Action != "" && payload.Action != "opened" && payload.Action != "reopened" {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored", "action": payload.Action})
		return
	}

	labels := make([]string, 0, len(payload.Issue.Labels))
	for _, l := range payload.Issue.Labels {
		labels = append(labels, l.Name)
	}

	description := payload.Issue.Body
	if payload.Issue.Number > 0 {
		description = fmt.Sprintf("Imported from issue #%d.\n\n%s", payload.Issue.Number, payload.Issue.Body)
	}

	task, err := s.orch.CreateTask(r.Context(), orchestrator.CreateTaskRequest{
		Title:       payload.Issue.Title,
		Description: description,
		Type:        typeFromLabels(labels),
		Priority:    priorityFromLabels(labels),
		Tags:        labels,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	log.GetLogger().Infof("[http] issue webhook created task %s from %q", task.ID, payload.Issue.Title)
	writeJSON(w, http.StatusCreated, task)
}

// typeFromLabels maps issue labels to a task type. First match wins.
func typeFromLabels(labels []string) string {
	for _, label := range labels {
		switch strings.ToLower(label) {
		case "bug", "bugfix", "regression":
			return "bugfix"
		case "docs", "documentation":
			return "documentation"
		case "test", "testing", "flaky-test":
			return "test"
		case "deploy", "deployment", "release":
			return "deploy"
		case "research", "spike", "investigation":
			return "research"
		case "review":
			return "review"
		case "chore", "maintenance", "dependencies":
			return "maintenance"
		}
	}
	return "code"
}

// priorityFromLabels maps issue labels to a priority. First match wins.
func priorityFromLabels(labels []string) string {
	for _, label := range labels {
		switch strings.ToLower(label) {
		case "critical", "urgent", "p0", "outage":
			return "critical"
		case "high", "p1":
			return "high"
		case "low", "p3", "nice-to-have":
			return "low"
		}
	}
	return "medium"
}
