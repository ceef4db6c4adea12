package models

import (
	"testing"
	"time"
)

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{
		TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("status %q should be valid", s)
		}
	}
	if TaskStatus("unknown").Valid() {
		t.Error("unknown status should not be valid")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if !TaskStatusCompleted.Terminal() || !TaskStatusFailed.Terminal() || !TaskStatusCancelled.Terminal() {
		t.Error("completed, failed, cancelled should be terminal")
	}
	if TaskStatusPending.Terminal() || TaskStatusAssigned.Terminal() || TaskStatusInProgress.Terminal() {
		t.Error("pending, assigned, in_progress should not be terminal")
	}
}

func TestTaskStatusCanTransition(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskStatusPending, TaskStatusAssigned, true},
		{TaskStatusAssigned, TaskStatusInProgress, true},
		{TaskStatusInProgress, TaskStatusCompleted, true},
		{TaskStatusInProgress, TaskStatusFailed, true},
		{TaskStatusPending, TaskStatusCancelled, true},
		{TaskStatusAssigned, TaskStatusCancelled, true},
		{TaskStatusInProgress, TaskStatusCancelled, true},
		// Disconnect recovery resets to pending.
		{TaskStatusAssigned, TaskStatusPending, true},
		{TaskStatusInProgress, TaskStatusPending, true},
		// Illegal moves.
		{TaskStatusPending, TaskStatusInProgress, false},
		{TaskStatusPending, TaskStatusCompleted, false},
		{TaskStatusCompleted, TaskStatusCancelled, false},
		{TaskStatusFailed, TaskStatusPending, false},
		{TaskStatusCancelled, TaskStatusAssigned, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestPriorityWeight(t *testing.T) {
	if PriorityCritical.Weight() != 100 {
		t.Errorf("critical weight = %v, want 100", PriorityCritical.Weight())
	}
	if PriorityHigh.Weight() != 50 {
		t.Errorf("high weight = %v, want 50", PriorityHigh.Weight())
	}
	if PriorityMedium.Weight() != 25 {
		t.Errorf("medium weight = %v, want 25", PriorityMedium.Weight())
	}
	if PriorityLow.Weight() != 10 {
		t.Errorf("low weight = %v, want 10", PriorityLow.Weight())
	}
}

func TestTaskAgeHoursCapped(t *testing.T) {
	now := time.Now()
	task := &Task{CreatedAt: now.Add(-48 * time.Hour)}
	if got := task.AgeHours(now); got != 24 {
		t.Errorf("AgeHours for 48h-old task = %v, want cap of 24", got)
	}

	task = &Task{CreatedAt: now.Add(-2 * time.Hour)}
	if got := task.AgeHours(now); got < 1.9 || got > 2.1 {
		t.Errorf("AgeHours for 2h-old task = %v, want ~2", got)
	}

	// Clock skew must not produce a negative age.
	task = &Task{CreatedAt: now.Add(time.Hour)}
	if got := task.AgeHours(now); got != 0 {
		t.Errorf("AgeHours for future task = %v, want 0", got)
	}
}

func TestTaskPriorityScore(t *testing.T) {
	now := time.Now()

	high := &Task{Priority: PriorityHigh, CreatedAt: now}
	low := &Task{Priority: PriorityLow, CreatedAt: now}
	if high.PriorityScore(now) <= low.PriorityScore(now) {
		t.Error("fresh high-priority task should outscore fresh low-priority task")
	}

	// A very old low-priority task never outruns a fresh critical one.
	oldLow := &Task{Priority: PriorityLow, CreatedAt: now.Add(-100 * time.Hour)}
	critical := &Task{Priority: PriorityCritical, CreatedAt: now}
	if oldLow.PriorityScore(now) >= critical.PriorityScore(now) {
		t.Error("aged low-priority score should stay below fresh critical score")
	}
}
