package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelhray/dispatch/internal/gateway"
	"github.com/kelhray/dispatch/internal/monitor"
	"github.com/kelhray/dispatch/internal/orchestrator"
	"github.com/kelhray/dispatch/internal/registry"
	"github.com/kelhray/dispatch/internal/state"
	"github.com/kelhray/dispatch/pkg/models"
)

// stubGateway keeps every spawned session running forever.
type stubGateway struct {
	mu      sync.Mutex
	spawns  int
	cancels int
}

func (g *stubGateway) Spawn(ctx context.Context, desc gateway.TaskDescriptor) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.spawns++
	return "ext-" + desc.TaskID, nil
}

func (g *stubGateway) Poll(ctx context.Context, externalID string) (*gateway.PollResult, error) {
	return &gateway.PollResult{Status: models.SessionStatusRunning}, nil
}

func (g *stubGateway) Cancel(ctx context.Context, externalID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels++
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	store := state.NewMemoryStore()
	reg := registry.New(store)
	gw := &stubGateway{}
	mon := monitor.New(store, gw, time.Hour)
	t.Cleanup(mon.Stop)
	orch := orchestrator.New(store, reg, mon, gw)

	srv := httptest.NewServer(NewServer(orch, reg, store, 5*time.Minute).Handler())
	t.Cleanup(srv.Close)
	return srv, reg
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestCreateAndGetTask(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/tasks", map[string]interface{}{
		"title":       "fix login timeout",
		"description": "sessions expire too quickly on the login page",
		"type":        "bugfix",
		"priority":    "high",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var task models.Task
	decode(t, resp, &task)
	assert.Equal(t, models.TaskStatusPending, task.Status)

	getResp, err := http.Get(srv.URL + "/tasks/" + task.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var fetched models.Task
	decode(t, getResp, &fetched)
	assert.Equal(t, task.ID, fetched.ID)
}

func TestCreateTaskValidationStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/tasks", map[string]interface{}{
		"title": "x", "description": "short", "type": "juggling",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Violations []string `json:"violations"`
	}
	decode(t, resp, &body)
	assert.GreaterOrEqual(t, len(body.Violations), 3)
}

func TestGetMissingTaskIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/tasks/task-nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAssignAndCancelFlow(t *testing.T) {
	srv, reg := newTestServer(t)
	reg.Register("builder", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	resp := postJSON(t, srv.URL+"/tasks", map[string]interface{}{
		"title":       "fix login timeout",
		"description": "sessions expire too quickly on the login page",
		"type":        "bugfix",
	})
	var task models.Task
	decode(t, resp, &task)

	assignResp := postJSON(t, srv.URL+"/tasks/"+task.ID+"/assign", map[string]string{})
	require.Equal(t, http.StatusOK, assignResp.StatusCode)
	var assigned models.Task
	decode(t, assignResp, &assigned)
	assert.Equal(t, models.TaskStatusInProgress, assigned.Status)
	assert.NotEmpty(t, assigned.AssignedTo)

	cancelResp := postJSON(t, srv.URL+"/tasks/"+task.ID+"/cancel", map[string]string{"reason": "not needed"})
	require.Equal(t, http.StatusOK, cancelResp.StatusCode)
	var cancelled models.Task
	decode(t, cancelResp, &cancelled)
	assert.Equal(t, models.TaskStatusCancelled, cancelled.Status)
	assert.Equal(t, "not needed", cancelled.Error)
}

func TestTaskSessionsEndpoint(t *testing.T) {
	srv, reg := newTestServer(t)
	reg.Register("builder", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	resp := postJSON(t, srv.URL+"/tasks", map[string]interface{}{
		"title":       "fix login timeout",
		"description": "sessions expire too quickly on the login page",
		"type":        "bugfix",
		"auto_assign": true,
	})
	var task models.Task
	decode(t, resp, &task)
	require.Equal(t, models.TaskStatusInProgress, task.Status)

	sessResp, err := http.Get(srv.URL + "/tasks/" + task.ID + "/sessions")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, sessResp.StatusCode)

	var body struct {
		Sessions []*models.Session `json:"sessions"`
	}
	decode(t, sessResp, &body)
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, task.SessionID, body.Sessions[0].ID)
	assert.NotEmpty(t, body.Sessions[0].Log)
}

func TestAgentLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/agents", map[string]interface{}{
		"name":         "builder",
		"capabilities": []string{"code", "bugfix"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var agent models.Agent
	decode(t, resp, &agent)
	assert.Equal(t, models.AgentStatusIdle, agent.Status)

	hbResp := postJSON(t, srv.URL+"/agents/"+agent.ID+"/heartbeat", nil)
	require.Equal(t, http.StatusOK, hbResp.StatusCode)
	hbResp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/agents/"+agent.ID, nil)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
	delResp.Body.Close()

	getResp, err := http.Get(srv.URL + "/agents/" + agent.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
	getResp.Body.Close()
}

func TestReportEndpoint(t *testing.T) {
	srv, reg := newTestServer(t)
	reg.Register("builder", []models.Capability{models.CapabilityCode}, models.AgentConfig{})

	resp, err := http.Get(srv.URL + "/report")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rep struct {
		Agents []struct {
			Name string `json:"name"`
		} `json:"agents"`
	}
	decode(t, resp, &rep)
	require.Len(t, rep.Agents, 1)
	assert.Equal(t, "builder", rep.Agents[0].Name)
}

func TestIssueWebhookCreatesTask(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/webhooks/issues", map[string]interface{}{
		"action": "opened",
		"issue": map[string]interface{}{
			"number": 42,
			"title":  "login page throws 500",
			"body":   "stack trace attached, happens on every submit",
			"labels": []map[string]string{{"name": "bug"}, {"name": "urgent"}},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var task models.Task
	decode(t, resp, &task)
	assert.Equal(t, models.TaskTypeBugfix, task.Type)
	assert.Equal(t, models.PriorityCritical, task.Priority)
	assert.Contains(t, task.Tags, "bug")
	assert.Contains(t, task.Description, "#42")
}

func TestIssueWebhookIgnoresOtherActions(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/webhooks/issues", map[string]interface{}{
		"action": "closed",
		"issue":  map[string]interface{}{"title": "done already"},
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
}
