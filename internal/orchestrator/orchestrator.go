package orchestrator

import (
	"sync"
	"time"

	"github.com/kelhray/dispatch/internal/gateway"
	"github.com/kelhray/dispatch/internal/monitor"
	"github.com/kelhray/dispatch/internal/registry"
	"github.com/kelhray/dispatch/internal/state"
	"github.com/kelhray/dispatch/pkg/models"
)

// eventBufferSize is the capacity of the events channel. Emission never
// blocks; events past capacity are dropped.
const eventBufferSize = 100

// Orchestrator coordinates the task queue, the agent registry, and the
// session monitor. All task mutations funnel through it so the per-task lock
// can serialize concurrent operations on the same task.
type Orchestrator struct {
	store    state.Store
	registry *registry.Registry
	monitor  *monitor.Monitor
	gw       gateway.Gateway

	events chan Event
	locks  *taskLocks
	// now is the clock, replaceable in tests.
	now func() time.Time
}

// New creates an Orchestrator and wires it to the registry's recovery hook
// and the monitor's completion hook.
func New(store state.Store, reg *registry.Registry, mon *monitor.Monitor, gw gateway.Gateway) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		registry: reg,
		monitor:  mon,
		gw:       gw,
		events:   make(chan Event, eventBufferSize),
		locks:    newTaskLocks(),
		now:      time.Now,
	}
	mon.SetCompletionHandler(func(taskID, sessionID string, outcome monitor.Outcome) {
		o.CompleteTask(taskID, sessionID, outcome)
	})
	reg.SetRecoveryHandler(o.RecoverDisconnected)
	return o
}

// Events returns the channel of orchestrator events.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// SetClock overrides the orchestrator's clock. Used by tests.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// GetTask returns the task with the given ID.
func (o *Orchestrator) GetTask(taskID string) (*models.Task, error) {
	return o.store.GetTask(taskID)
}

// ListTasks returns tasks matching the filter.
func (o *Orchestrator) ListTasks(f state.TaskFilter) ([]*models.Task, error) {
	return o.store.ListTasks(f)
}

// taskLocks hands out one mutex per task ID so operations on the same task
// serialize while operations on different tasks proceed in parallel. Entries
// are never freed; the map is bounded by the number of tasks ever touched in
// one process lifetime.
type taskLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTaskLocks() *taskLocks {
	return &taskLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *taskLocks) lock(taskID string) func() {
	l.mu.Lock()
	m, ok := l.locks[taskID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[taskID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
