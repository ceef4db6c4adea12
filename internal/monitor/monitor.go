// Package monitor owns the polling loops that track remote execution
// sessions against the gateway. Each in-flight session gets its own
// uncoordinated timer goroutine; loops self-terminate when the gateway
// reports a terminal status and report the outcome through a shared,
// idempotent completion callback.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kelhray/dispatch/internal/gateway"
	"github.com/kelhray/dispatch/internal/log"
	"github.com/kelhray/dispatch/internal/state"
	"github.com/kelhray/dispatch/pkg/models"
)

// DefaultPollInterval is how often a session is polled unless configured.
const DefaultPollInterval = 10 * time.Second

// Outcome is the terminal result of a session, delivered to the completion
// callback.
type Outcome struct {
	// Success indicates the session completed rather than failed or cancelled.
	Success bool
	// Output is the gateway-reported output payload.
	Output string
	// Error is the gateway-reported error payload.
	Error string
}

// CompleteFunc receives a session's terminal outcome. It must be idempotent:
// a duplicate or late delivery for a task that already moved on is a no-op.
type CompleteFunc func(taskID, sessionID string, outcome Outcome)

// Monitor spawns and tracks execution sessions.
type Monitor struct {
	store    state.Store
	gw       gateway.Gateway
	complete CompleteFunc

	mu       sync.Mutex
	interval time.Duration
	active   map[string]context.CancelFunc
	wg       sync.WaitGroup
	now      func() time.Time
}

// New creates a Monitor polling at the given interval.
func New(store state.Store, gw gateway.Gateway, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{
		store:    store,
		gw:       gw,
		interval: interval,
		active:   make(map[string]context.CancelFunc),
		now:      time.Now,
	}
}

// SetCompletionHandler installs the callback invoked when a session reaches
// a terminal state. Must be set before any session is started.
func (m *Monitor) SetCompletionHandler(fn CompleteFunc) {
	m.complete = fn
}

// SetInterval changes the polling interval for subsequent poll cycles.
// Running loops pick the new value up on their next tick.
func (m *Monitor) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.interval = d
	m.mu.Unlock()
}

func (m *Monitor) pollInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// ActiveCount returns the number of sessions currently being monitored.
func (m *Monitor) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// StartSession asks the gateway to spawn an execution for the task, persists
// the session record, and begins monitoring it. If the gateway spawn fails no
// session record is created and the error is returned for the orchestrator to
// convert into a task failure.
func (m *Monitor) StartSession(ctx context.Context, task *models.Task, agentID string) (*models.Session, error) {
	externalID, err := m.gw.Spawn(ctx, gateway.TaskDescriptor{
		TaskID:      task.ID,
		AgentID:     agentID,
		Title:       task.Title,
		Description: task.Description,
		Type:        task.Type,
		Tags:        task.Tags,
	})
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := &models.Session{
		ID:         models.NewSessionID(),
		TaskID:     task.ID,
		AgentID:    agentID,
		ExternalID: externalID,
		Status:     models.SessionStatusStarting,
		StartedAt:  now,
	}
	sess.AppendLog(now, fmt.Sprintf("spawned gateway session %s", externalID))
	if err := m.store.CreateSession(sess); err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.active[sess.ID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.watch(loopCtx, sess.ID, externalID, task.ID)

	log.GetLogger().Infof("[monitor] watching session %s for task %s", sess.ID, task.ID)
	return sess, nil
}

// watch polls one session until it reaches a terminal gateway status or its
// loop is torn down. Poll errors are logged and tolerated; the loop keeps
// going so a transient network blip never fails a healthy task.
func (m *Monitor) watch(ctx context.Context, sessionID, externalID, taskID string) {
	defer m.wg.Done()
	logger := log.GetLogger()

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.pollInterval()):
		}

		res, err := m.gw.Poll(ctx, externalID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("[monitor] poll session %s: %v", sessionID, err)
			m.appendSessionLog(sessionID, fmt.Sprintf("poll error: %v", err))
			continue
		}

		if res.Status.Terminal() {
			m.finalize(sessionID, taskID, res.Status, res.Output, res.Error)
			return
		}

		m.observeProgress(sessionID, res.Status)
	}
}

// observeProgress records a non-terminal status change on the session.
func (m *Monitor) observeProgress(sessionID string, status models.SessionStatus) {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		log.GetLogger().Warnf("[monitor] read session %s: %v", sessionID, err)
		return
	}
	if sess.Status == status || sess.Status.Terminal() {
		return
	}
	sess.Status = status
	sess.AppendLog(m.now(), fmt.Sprintf("gateway reports %s", status))
	if err := m.store.UpdateSession(sess); err != nil {
		log.GetLogger().Warnf("[monitor] update session %s: %v", sessionID, err)
	}
}

// finalize assigns the session's terminal status exactly once and delivers
// the outcome. A session that is already terminal is left untouched, which
// makes duplicate terminal signals harmless.
func (m *Monitor) finalize(sessionID, taskID string, status models.SessionStatus, output, errMsg string) {
	logger := log.GetLogger()

	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		logger.Errorf("[monitor] finalize session %s: %v", sessionID, err)
		m.teardown(sessionID)
		return
	}
	if sess.Status.Terminal() {
		m.teardown(sessionID)
		return
	}

	now := m.now()
	sess.Status = status
	sess.Output = output
	sess.Error = errMsg
	sess.EndedAt = &now
	sess.AppendLog(now, fmt.Sprintf("session finished with status %s", status))
	if err := m.store.UpdateSession(sess); err != nil {
		logger.Errorf("[monitor] persist terminal session %s: %v", sessionID, err)
	}

	m.teardown(sessionID)
	logger.Infof("[monitor] session %s for task %s finished: %s", sessionID, taskID, status)

	if m.complete != nil {
		m.complete(taskID, sessionID, Outcome{
			Success: status == models.SessionStatusCompleted,
			Output:  output,
			Error:   errMsg,
		})
	}
}

// appendSessionLog appends one entry to a session's bounded log.
func (m *Monitor) appendSessionLog(sessionID, message string) {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return
	}
	sess.AppendLog(m.now(), message)
	if err := m.store.UpdateSession(sess); err != nil {
		log.GetLogger().Warnf("[monitor] update session %s log: %v", sessionID, err)
	}
}

// Teardown stops monitoring a session and, if the session is still
// non-terminal, marks it cancelled. The orchestrator calls this once a
// cancellation has been recorded locally.
func (m *Monitor) Teardown(sessionID string) {
	sess, err := m.store.GetSession(sessionID)
	if err == nil && !sess.Status.Terminal() {
		now := m.now()
		sess.Status = models.SessionStatusCancelled
		sess.EndedAt = &now
		sess.AppendLog(now, "monitoring torn down, session cancelled")
		if err := m.store.UpdateSession(sess); err != nil {
			log.GetLogger().Warnf("[monitor] persist cancelled session %s: %v", sessionID, err)
		}
	}
	m.teardown(sessionID)
}

// teardown cancels and forgets the session's polling loop.
func (m *Monitor) teardown(sessionID string) {
	m.mu.Lock()
	cancel, ok := m.active[sessionID]
	if ok {
		delete(m.active, sessionID)
	}
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// Stop tears down every polling loop and waits for them to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	for id, cancel := range m.active {
		cancel()
		delete(m.active, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}
