package models

import (
	"math"
	"testing"
	"time"
)

func TestAgentRecordOutcomeSuccess(t *testing.T) {
	a := &Agent{SuccessRate: 100}

	a.RecordOutcome(1000, true)
	if a.TasksCompleted != 1 || a.TasksFailed != 0 {
		t.Errorf("counters = %d/%d, want 1/0", a.TasksCompleted, a.TasksFailed)
	}
	if a.AvgDurationMs != 1000 {
		t.Errorf("avg duration = %v, want 1000", a.AvgDurationMs)
	}
	if a.SuccessRate != 100 {
		t.Errorf("success rate = %v, want 100", a.SuccessRate)
	}
}

func TestAgentRecordOutcomeRunningAverage(t *testing.T) {
	a := &Agent{SuccessRate: 100}

	a.RecordOutcome(1000, true)
	a.RecordOutcome(2000, true)
	a.RecordOutcome(3000, false)

	if a.TasksCompleted != 2 || a.TasksFailed != 1 {
		t.Errorf("counters = %d/%d, want 2/1", a.TasksCompleted, a.TasksFailed)
	}
	if a.AvgDurationMs != 2000 {
		t.Errorf("avg duration = %v, want 2000", a.AvgDurationMs)
	}
	want := 2.0 / 3.0 * 100
	if math.Abs(a.SuccessRate-want) > 0.001 {
		t.Errorf("success rate = %v, want %v", a.SuccessRate, want)
	}
}

func TestAgentHasCapability(t *testing.T) {
	a := &Agent{Capabilities: []Capability{CapabilityCode, CapabilityFullstack}}
	if !a.HasCapability(CapabilityCode) {
		t.Error("agent should have code capability")
	}
	if a.HasCapability(CapabilityDeploy) {
		t.Error("agent should not have deploy capability")
	}
}

func TestAgentAcceptsType(t *testing.T) {
	unrestricted := &Agent{}
	if !unrestricted.AcceptsType(TaskTypeDeploy) {
		t.Error("agent with empty task type list should accept all types")
	}

	restricted := &Agent{Config: AgentConfig{TaskTypes: []TaskType{TaskTypeCode}}}
	if !restricted.AcceptsType(TaskTypeCode) {
		t.Error("agent should accept configured type")
	}
	if restricted.AcceptsType(TaskTypeDeploy) {
		t.Error("agent should reject unconfigured type")
	}
}

func TestSessionAppendLogBounded(t *testing.T) {
	s := &Session{}
	now := time.Now()
	for i := 0; i < MaxSessionLogEntries+50; i++ {
		s.AppendLog(now.Add(time.Duration(i)*time.Second), "entry")
	}
	if len(s.Log) != MaxSessionLogEntries {
		t.Errorf("log length = %d, want %d", len(s.Log), MaxSessionLogEntries)
	}
	// Oldest entries drop first: the first surviving entry is entry 50.
	wantFirst := now.Add(50 * time.Second)
	if !s.Log[0].Time.Equal(wantFirst) {
		t.Errorf("first log entry time = %v, want %v", s.Log[0].Time, wantFirst)
	}
}
