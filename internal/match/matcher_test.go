package match

import (
	"testing"

	"github.com/kelhray/dispatch/pkg/models"
)

func TestRequiredCapabilitiesKnownType(t *testing.T) {
	caps := RequiredCapabilities(models.TaskTypeBugfix)
	want := map[models.Capability]bool{
		models.CapabilityBugfix:    true,
		models.CapabilityCode:      true,
		models.CapabilityFullstack: true,
	}
	if len(caps) != len(want) {
		t.Fatalf("bugfix capabilities = %v, want 3 entries", caps)
	}
	for _, c := range caps {
		if !want[c] {
			t.Errorf("unexpected capability %q for bugfix", c)
		}
	}
}

func TestRequiredCapabilitiesUnknownTypeFailsClosed(t *testing.T) {
	caps := RequiredCapabilities(models.TaskType("telepathy"))
	found := false
	for _, c := range caps {
		if c == models.CapabilityCode {
			found = true
		}
	}
	if !found {
		t.Errorf("unknown type should fall back to the code capability set, got %v", caps)
	}
}

func TestCanHandle(t *testing.T) {
	agent := &models.Agent{Capabilities: []models.Capability{models.CapabilityCode}}
	if !CanHandle(agent, models.TaskTypeBugfix) {
		t.Error("code-capable agent should handle bugfix tasks")
	}
	if CanHandle(agent, models.TaskTypeDeploy) {
		t.Error("code-capable agent should not handle deploy tasks")
	}

	fullstack := &models.Agent{Capabilities: []models.Capability{models.CapabilityFullstack}}
	if !CanHandle(fullstack, models.TaskTypeDeploy) {
		t.Error("fullstack agent should handle deploy tasks")
	}
}

func TestCanHandleRespectsAgentConfig(t *testing.T) {
	agent := &models.Agent{
		Capabilities: []models.Capability{models.CapabilityFullstack},
		Config:       models.AgentConfig{TaskTypes: []models.TaskType{models.TaskTypeReview}},
	}
	if CanHandle(agent, models.TaskTypeCode) {
		t.Error("agent restricted to review should not handle code tasks")
	}
	if !CanHandle(agent, models.TaskTypeReview) {
		t.Error("agent restricted to review should handle review tasks")
	}
}

func TestScore(t *testing.T) {
	veteran := &models.Agent{SuccessRate: 90, TasksCompleted: 200}
	if got := Score(veteran); got != 0.6*90+0.4*100 {
		t.Errorf("veteran score = %v, want %v", got, 0.6*90+0.4*100)
	}

	fresh := &models.Agent{SuccessRate: 100}
	if got := Score(fresh); got != 60 {
		t.Errorf("fresh agent score = %v, want 60", got)
	}
}

func TestSelectBestAgentFiltersAndRanks(t *testing.T) {
	task := &models.Task{Type: models.TaskTypeCode}
	busy := &models.Agent{
		ID: "agent-a", Status: models.AgentStatusBusy,
		Capabilities: []models.Capability{models.CapabilityCode},
		SuccessRate:  100, TasksCompleted: 100,
	}
	wrongCaps := &models.Agent{
		ID: "agent-b", Status: models.AgentStatusIdle,
		Capabilities: []models.Capability{models.CapabilityDeploy},
		SuccessRate:  100, TasksCompleted: 100,
	}
	weak := &models.Agent{
		ID: "agent-c", Status: models.AgentStatusIdle,
		Capabilities: []models.Capability{models.CapabilityCode},
		SuccessRate:  50,
	}
	strong := &models.Agent{
		ID: "agent-d", Status: models.AgentStatusIdle,
		Capabilities: []models.Capability{models.CapabilityFullstack},
		SuccessRate:  95, TasksCompleted: 40,
	}

	got := SelectBestAgent([]*models.Agent{busy, wrongCaps, weak, strong}, task)
	if got == nil || got.ID != "agent-d" {
		t.Fatalf("SelectBestAgent = %v, want agent-d", got)
	}
}

func TestSelectBestAgentDeterministicTieBreak(t *testing.T) {
	task := &models.Task{Type: models.TaskTypeCode}
	mk := func(id string) *models.Agent {
		return &models.Agent{
			ID: id, Status: models.AgentStatusIdle,
			Capabilities: []models.Capability{models.CapabilityCode},
			SuccessRate:  100, TasksCompleted: 10,
		}
	}

	// Same agents in both orders must yield the same winner.
	first := SelectBestAgent([]*models.Agent{mk("agent-2"), mk("agent-1")}, task)
	second := SelectBestAgent([]*models.Agent{mk("agent-1"), mk("agent-2")}, task)
	if first.ID != "agent-1" || second.ID != "agent-1" {
		t.Errorf("tie break selected %s / %s, want agent-1 in both orders", first.ID, second.ID)
	}
}

func TestSelectBestAgentNoneAvailable(t *testing.T) {
	task := &models.Task{Type: models.TaskTypeCode}
	if got := SelectBestAgent(nil, task); got != nil {
		t.Errorf("SelectBestAgent with no agents = %v, want nil", got)
	}
}
