package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kelhray/dispatch/internal/gateway"
	"github.com/kelhray/dispatch/internal/monitor"
	"github.com/kelhray/dispatch/internal/registry"
	"github.com/kelhray/dispatch/internal/state"
	"github.com/kelhray/dispatch/pkg/models"
)

// fakeGateway reports a settable status for every session. Tests flip the
// status to drive sessions to a terminal state.
type fakeGateway struct {
	mu       sync.Mutex
	spawnErr error
	status   models.SessionStatus
	output   string
	errMsg   string
	spawns   int
	cancels  []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{status: models.SessionStatusRunning}
}

func (f *fakeGateway) setResult(status models.SessionStatus, output, errMsg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.output, f.errMsg = status, output, errMsg
}

func (f *fakeGateway) Spawn(ctx context.Context, desc gateway.TaskDescriptor) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnErr != nil {
		return "", f.spawnErr
	}
	f.spawns++
	return "ext-" + desc.TaskID, nil
}

func (f *fakeGateway) Poll(ctx context.Context, externalID string) (*gateway.PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &gateway.PollResult{Status: f.status, Output: f.output, Error: f.errMsg}, nil
}

func (f *fakeGateway) Cancel(ctx context.Context, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, externalID)
	return nil
}

func newTestOrchestrator(t *testing.T, gw *fakeGateway, pollInterval time.Duration) (*Orchestrator, *state.MemoryStore, *registry.Registry) {
	t.Helper()
	store := state.NewMemoryStore()
	reg := registry.New(store)
	mon := monitor.New(store, gw, pollInterval)
	t.Cleanup(mon.Stop)
	return New(store, reg, mon, gw), store, reg
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func validRequest() CreateTaskRequest {
	return CreateTaskRequest{
		Title:       "fix login timeout",
		Description: "sessions expire too quickly on the login page",
		Type:        "bugfix",
		Priority:    "high",
	}
}

func TestCreateTaskValidationCollectsAllViolations(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, newFakeGateway(), time.Hour)

	_, err := o.CreateTask(context.Background(), CreateTaskRequest{
		Title:       "ab",
		Description: "too short",
		Type:        "juggling",
		Priority:    "urgent-ish",
	})
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Violations) != 4 {
		t.Errorf("got %d violations, want all 4: %v", len(verr.Violations), verr.Violations)
	}
}

func TestCreateTaskDefaults(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, newFakeGateway(), time.Hour)

	req := validRequest()
	req.Priority = ""
	task, err := o.CreateTask(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("status = %q, want pending", task.Status)
	}
	if task.Priority != models.PriorityMedium {
		t.Errorf("priority = %q, want default medium", task.Priority)
	}
	if task.AssignedTo != "" {
		t.Error("fresh task must not carry an assignee")
	}
}

func TestAssignTaskRunsThroughStart(t *testing.T) {
	gw := newFakeGateway()
	o, _, reg := newTestOrchestrator(t, gw, time.Hour)
	agent, _ := reg.Register("builder", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	created, _ := o.CreateTask(context.Background(), validRequest())
	task, err := o.AssignTask(context.Background(), created.ID, "")
	if err != nil {
		t.Fatalf("AssignTask returned error: %v", err)
	}
	if task.Status != models.TaskStatusInProgress {
		t.Errorf("status = %q, want in_progress", task.Status)
	}
	if task.AssignedTo != agent.ID {
		t.Errorf("assigned to %q, want %s", task.AssignedTo, agent.ID)
	}
	if task.SessionID == "" || task.StartedAt == nil || task.Progress != 10 {
		t.Errorf("started task should carry session, start time, and progress 10; got %q/%v/%d",
			task.SessionID, task.StartedAt, task.Progress)
	}

	busy, _ := reg.Get(agent.ID)
	if busy.Status != models.AgentStatusBusy || busy.CurrentTaskID != task.ID {
		t.Errorf("agent should be busy on %s, got %s holding %q", task.ID, busy.Status, busy.CurrentTaskID)
	}
}

func TestAssignTaskSelectsBestAgent(t *testing.T) {
	gw := newFakeGateway()
	o, _, reg := newTestOrchestrator(t, gw, time.Hour)

	weak, _ := reg.Register("weak", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})
	strong, _ := reg.Register("strong", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})
	for i := 0; i < 10; i++ {
		reg.RecordOutcome(strong.ID, 1000, true)
	}
	reg.RecordOutcome(weak.ID, 1000, false)

	created, _ := o.CreateTask(context.Background(), validRequest())
	task, err := o.AssignTask(context.Background(), created.ID, "")
	if err != nil {
		t.Fatalf("AssignTask returned error: %v", err)
	}
	if task.AssignedTo != strong.ID {
		t.Errorf("assigned to %q, want higher-scoring agent %s", task.AssignedTo, strong.ID)
	}
}

func TestAssignTaskNoAgentStaysQueued(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, newFakeGateway(), time.Hour)

	created, _ := o.CreateTask(context.Background(), validRequest())
	task, err := o.AssignTask(context.Background(), created.ID, "")
	if err != nil {
		t.Fatalf("no available agent must not be an error, got %v", err)
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("status = %q, want pending with empty fleet", task.Status)
	}
}

func TestAssignTaskNonPendingIsNoop(t *testing.T) {
	gw := newFakeGateway()
	o, _, reg := newTestOrchestrator(t, gw, time.Hour)
	reg.Register("builder", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	created, _ := o.CreateTask(context.Background(), validRequest())
	first, _ := o.AssignTask(context.Background(), created.ID, "")
	again, err := o.AssignTask(context.Background(), created.ID, "")
	if err != nil {
		t.Fatalf("second AssignTask returned error: %v", err)
	}
	if again.Status != first.Status || again.AssignedTo != first.AssignedTo {
		t.Error("assigning a non-pending task must change nothing")
	}
	if gw.spawns != 1 {
		t.Errorf("gateway spawned %d sessions, want 1", gw.spawns)
	}
}

func TestSpawnFailureMarksTaskFailedAndFreesAgent(t *testing.T) {
	gw := newFakeGateway()
	gw.spawnErr = &models.GatewayError{Op: "spawn", Err: errors.New("no capacity")}
	o, store, reg := newTestOrchestrator(t, gw, time.Hour)
	agent, _ := reg.Register("builder", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	created, _ := o.CreateTask(context.Background(), validRequest())
	task, err := o.AssignTask(context.Background(), created.ID, "")
	if err == nil {
		t.Fatal("expected spawn error to surface")
	}
	if task.Status != models.TaskStatusFailed {
		t.Errorf("status = %q, want failed", task.Status)
	}
	if task.AssignedTo != "" {
		t.Error("failed task must not keep an assignee")
	}
	if task.Error == "" {
		t.Error("spawn failure should be recorded on the task")
	}

	freed, _ := reg.Get(agent.ID)
	if freed.Status != models.AgentStatusIdle {
		t.Errorf("agent status = %q, want idle after spawn rollback", freed.Status)
	}
	sessions, _ := store.ListSessionsByTask(task.ID)
	if len(sessions) != 0 {
		t.Errorf("found %d sessions after failed spawn, want 0", len(sessions))
	}
}

func TestCompletionFlow(t *testing.T) {
	gw := newFakeGateway()
	o, store, reg := newTestOrchestrator(t, gw, 3*time.Millisecond)
	agent, _ := reg.Register("builder", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	created, _ := o.CreateTask(context.Background(), validRequest())
	if _, err := o.AssignTask(context.Background(), created.ID, ""); err != nil {
		t.Fatalf("AssignTask returned error: %v", err)
	}

	gw.setResult(models.SessionStatusCompleted, "patched the handler\nlesson: session TTL lives in two places", "")

	waitFor(t, func() bool {
		task, err := o.GetTask(created.ID)
		return err == nil && task.Status == models.TaskStatusCompleted
	}, "task never completed")

	task, _ := o.GetTask(created.ID)
	if task.Progress != 100 {
		t.Errorf("progress = %d, want 100", task.Progress)
	}
	if task.AssignedTo != "" {
		t.Error("completed task must not keep an assignee")
	}
	if task.Result == nil || !task.Result.Success {
		t.Error("completed task should carry a successful result")
	}
	if task.StartedAt == nil || task.CompletedAt == nil {
		t.Fatal("completed task should carry both timestamps")
	}
	if task.CompletedAt.Before(*task.StartedAt) || task.StartedAt.Before(task.CreatedAt) {
		t.Error("timestamps must be ordered created <= started <= completed")
	}

	freed, _ := reg.Get(agent.ID)
	if freed.Status != models.AgentStatusIdle {
		t.Errorf("agent status = %q, want idle", freed.Status)
	}
	if freed.TasksCompleted != 1 {
		t.Errorf("agent completed count = %d, want 1", freed.TasksCompleted)
	}

	learnings, _ := store.ListLearnings(10)
	if len(learnings) != 1 {
		t.Fatalf("got %d learnings, want the single flagged line", len(learnings))
	}
	if learnings[0].TaskID != task.ID || learnings[0].AgentID != agent.ID {
		t.Error("learning should reference the task and agent that produced it")
	}
}

func TestCompleteTaskIdempotent(t *testing.T) {
	gw := newFakeGateway()
	o, _, reg := newTestOrchestrator(t, gw, time.Hour)
	agent, _ := reg.Register("builder", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	created, _ := o.CreateTask(context.Background(), validRequest())
	task, _ := o.AssignTask(context.Background(), created.ID, "")

	outcome := monitor.Outcome{Success: true, Output: "done"}
	o.CompleteTask(task.ID, task.SessionID, outcome)
	o.CompleteTask(task.ID, task.SessionID, outcome)

	got, _ := reg.Get(agent.ID)
	if got.TasksCompleted != 1 {
		t.Errorf("completed count = %d after duplicate delivery, want 1", got.TasksCompleted)
	}
}

func TestCompleteTaskDropsStaleSession(t *testing.T) {
	gw := newFakeGateway()
	o, _, reg := newTestOrchestrator(t, gw, time.Hour)
	reg.Register("builder", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	created, _ := o.CreateTask(context.Background(), validRequest())
	task, _ := o.AssignTask(context.Background(), created.ID, "")

	o.CompleteTask(task.ID, "sess-orphaned", monitor.Outcome{Success: true})

	got, _ := o.GetTask(task.ID)
	if got.Status != models.TaskStatusInProgress {
		t.Errorf("status = %q, a stale session outcome must not finalize the task", got.Status)
	}
}

func TestProcessNextTaskAssignsHighestScore(t *testing.T) {
	gw := newFakeGateway()
	o, _, reg := newTestOrchestrator(t, gw, time.Hour)

	low := validRequest()
	low.Title = "tidy changelog"
	low.Priority = "low"
	lowTask, _ := o.CreateTask(context.Background(), low)

	critical := validRequest()
	critical.Title = "prod is down"
	critical.Priority = "critical"
	criticalTask, _ := o.CreateTask(context.Background(), critical)

	reg.Register("builder", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	assigned, err := o.ProcessNextTask(context.Background())
	if err != nil {
		t.Fatalf("ProcessNextTask returned error: %v", err)
	}
	if assigned == nil || assigned.ID != criticalTask.ID {
		t.Fatalf("assigned %v, want the critical task %s", assigned, criticalTask.ID)
	}

	stillPending, _ := o.GetTask(lowTask.ID)
	if stillPending.Status != models.TaskStatusPending {
		t.Errorf("low priority task status = %q, exactly one task may be assigned per pass", stillPending.Status)
	}
}

func TestProcessNextTaskEmptyQueue(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, newFakeGateway(), time.Hour)
	task, err := o.ProcessNextTask(context.Background())
	if err != nil || task != nil {
		t.Errorf("empty queue pass = (%v, %v), want (nil, nil)", task, err)
	}
}

func TestCancelTask(t *testing.T) {
	gw := newFakeGateway()
	o, store, reg := newTestOrchestrator(t, gw, time.Hour)
	agent, _ := reg.Register("builder", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	created, _ := o.CreateTask(context.Background(), validRequest())
	started, _ := o.AssignTask(context.Background(), created.ID, "")
	sessionID := started.SessionID

	task, err := o.CancelTask(context.Background(), created.ID, "requirements changed")
	if err != nil {
		t.Fatalf("CancelTask returned error: %v", err)
	}
	if task.Status != models.TaskStatusCancelled {
		t.Errorf("status = %q, want cancelled", task.Status)
	}
	if task.Error != "requirements changed" {
		t.Errorf("error = %q, want the cancellation reason", task.Error)
	}

	if len(gw.cancels) != 1 {
		t.Errorf("gateway cancel called %d times, want 1", len(gw.cancels))
	}
	sess, _ := store.GetSession(sessionID)
	if sess.Status != models.SessionStatusCancelled {
		t.Errorf("session status = %q, want cancelled", sess.Status)
	}
	freed, _ := reg.Get(agent.ID)
	if freed.Status != models.AgentStatusIdle {
		t.Errorf("agent status = %q, want idle after cancel", freed.Status)
	}
}

func TestCancelTerminalTaskIsNoop(t *testing.T) {
	gw := newFakeGateway()
	o, _, reg := newTestOrchestrator(t, gw, time.Hour)
	reg.Register("builder", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	created, _ := o.CreateTask(context.Background(), validRequest())
	task, _ := o.AssignTask(context.Background(), created.ID, "")
	o.CompleteTask(task.ID, task.SessionID, monitor.Outcome{Success: true})

	got, err := o.CancelTask(context.Background(), task.ID, "too late")
	if err != nil {
		t.Fatalf("CancelTask returned error: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("status = %q, cancelling a terminal task must change nothing", got.Status)
	}
}

func TestRecoverDisconnectedRequeuesAndReassigns(t *testing.T) {
	gw := newFakeGateway()
	o, _, reg := newTestOrchestrator(t, gw, time.Hour)
	first, _ := reg.Register("first", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	created, _ := o.CreateTask(context.Background(), validRequest())
	started, _ := o.AssignTask(context.Background(), created.ID, "")
	if started.AssignedTo != first.ID {
		t.Fatalf("setup: task went to %q", started.AssignedTo)
	}

	// A second idle agent picks the task up during the recovery queue pass.
	second, _ := reg.Register("second", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	if err := reg.Deregister(first.ID); err != nil {
		t.Fatalf("Deregister returned error: %v", err)
	}

	task, _ := o.GetTask(created.ID)
	if task.Status != models.TaskStatusInProgress {
		t.Fatalf("status = %q, want in_progress on the replacement agent", task.Status)
	}
	if task.AssignedTo != second.ID {
		t.Errorf("assigned to %q, want %s", task.AssignedTo, second.ID)
	}
	if gw.spawns != 2 {
		t.Errorf("gateway spawned %d sessions, want 2 (one per assignment)", gw.spawns)
	}
}

func TestRecoverDisconnectedLeavesTerminalTaskAlone(t *testing.T) {
	gw := newFakeGateway()
	o, _, reg := newTestOrchestrator(t, gw, time.Hour)
	reg.Register("builder", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	created, _ := o.CreateTask(context.Background(), validRequest())
	task, _ := o.AssignTask(context.Background(), created.ID, "")
	o.CompleteTask(task.ID, task.SessionID, monitor.Outcome{Success: true})

	o.RecoverDisconnected("agent-gone", task.ID)

	got, _ := o.GetTask(task.ID)
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("status = %q, recovery must never touch a terminal task", got.Status)
	}
}

func TestHealthSweepScenario(t *testing.T) {
	gw := newFakeGateway()
	o, _, reg := newTestOrchestrator(t, gw, time.Hour)
	agent, _ := reg.Register("builder", []models.Capability{models.CapabilityBugfix}, models.AgentConfig{})

	created, _ := o.CreateTask(context.Background(), validRequest())
	if _, err := o.AssignTask(context.Background(), created.ID, ""); err != nil {
		t.Fatalf("AssignTask returned error: %v", err)
	}

	reg.SetClock(func() time.Time { return time.Now().Add(time.Hour) })
	if offlined := reg.HealthSweep(5 * time.Minute); offlined != 1 {
		t.Fatalf("offlined = %d, want 1", offlined)
	}

	task, _ := o.GetTask(created.ID)
	if task.Status != models.TaskStatusPending {
		t.Errorf("status = %q, want pending after disconnect recovery", task.Status)
	}
	if task.AssignedTo != "" || task.SessionID != "" || task.Progress != 0 {
		t.Error("recovered task must drop assignee, session, and progress")
	}

	gone, _ := reg.Get(agent.ID)
	if gone.Status != models.AgentStatusOffline {
		t.Errorf("agent status = %q, want offline", gone.Status)
	}
}
