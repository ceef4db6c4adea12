package state

import (
	"sort"
	"sync"

	"github.com/kelhray/dispatch/pkg/models"
)

// MemoryStore is an in-memory Store implementation. It backs tests and the
// --store memory mode. Records are copied on the way in and out so callers
// always observe the read-then-write discipline the engine relies on: a held
// pointer never aliases stored state.
type MemoryStore struct {
	tasks     map[string]*models.Task
	agents    map[string]*models.Agent
	sessions  map[string]*models.Session
	learnings []*models.Learning
	mu        sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[string]*models.Task),
		agents:   make(map[string]*models.Agent),
		sessions: make(map[string]*models.Session),
	}
}

// Close implements io.Closer. It is a no-op for the memory backend.
func (m *MemoryStore) Close() error { return nil }

// Migrate implements Migrator. It is a no-op for the memory backend.
func (m *MemoryStore) Migrate() error { return nil }

func copyTask(t *models.Task) *models.Task {
	c := *t
	c.Tags = append([]string(nil), t.Tags...)
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	if t.Result != nil {
		result := *t.Result
		c.Result = &result
	}
	return &c
}

func copyAgent(a *models.Agent) *models.Agent {
	c := *a
	c.Capabilities = append([]models.Capability(nil), a.Capabilities...)
	c.Config.TaskTypes = append([]models.TaskType(nil), a.Config.TaskTypes...)
	return &c
}

func copySession(s *models.Session) *models.Session {
	c := *s
	c.Log = append([]models.SessionLogEntry(nil), s.Log...)
	if s.EndedAt != nil {
		ended := *s.EndedAt
		c.EndedAt = &ended
	}
	return &c
}

// CreateTask stores a new task.
func (m *MemoryStore) CreateTask(t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = copyTask(t)
	return nil
}

// GetTask retrieves a task by ID.
func (m *MemoryStore) GetTask(id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "task", ID: id}
	}
	return copyTask(t), nil
}

// UpdateTask replaces the stored task with the given record.
func (m *MemoryStore) UpdateTask(t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		return &models.NotFoundError{Resource: "task", ID: t.ID}
	}
	m.tasks[t.ID] = copyTask(t)
	return nil
}

func matchTask(t *models.Task, f TaskFilter) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.CreatedAfter != nil && !t.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !t.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

// ListTasks returns tasks matching the filter, ordered by creation time.
func (m *MemoryStore) ListTasks(f TaskFilter) ([]*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Task
	for _, t := range m.tasks {
		if matchTask(t, f) {
			out = append(out, copyTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CreateAgent stores a new agent.
func (m *MemoryStore) CreateAgent(a *models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = copyAgent(a)
	return nil
}

// GetAgent retrieves an agent by ID.
func (m *MemoryStore) GetAgent(id string) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "agent", ID: id}
	}
	return copyAgent(a), nil
}

// UpdateAgent replaces the stored agent with the given record.
func (m *MemoryStore) UpdateAgent(a *models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[a.ID]; !ok {
		return &models.NotFoundError{Resource: "agent", ID: a.ID}
	}
	m.agents[a.ID] = copyAgent(a)
	return nil
}

// DeleteAgent removes an agent record.
func (m *MemoryStore) DeleteAgent(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[id]; !ok {
		return &models.NotFoundError{Resource: "agent", ID: id}
	}
	delete(m.agents, id)
	return nil
}

// ListAgents returns agents matching the filter, ordered by ID.
func (m *MemoryStore) ListAgents(f AgentFilter) ([]*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Agent
	for _, a := range m.agents {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, copyAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateSession stores a new session.
func (m *MemoryStore) CreateSession(s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = copySession(s)
	return nil
}

// GetSession retrieves a session by ID.
func (m *MemoryStore) GetSession(id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "session", ID: id}
	}
	return copySession(s), nil
}

// UpdateSession replaces the stored session with the given record.
func (m *MemoryStore) UpdateSession(s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return &models.NotFoundError{Resource: "session", ID: s.ID}
	}
	m.sessions[s.ID] = copySession(s)
	return nil
}

// ListSessionsByTask returns all sessions for the given task, oldest first.
func (m *MemoryStore) ListSessionsByTask(taskID string) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Session
	for _, s := range m.sessions {
		if s.TaskID == taskID {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// CreateLearning stores a new learning.
func (m *MemoryStore) CreateLearning(l *models.Learning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *l
	m.learnings = append(m.learnings, &c)
	return nil
}

// ListLearnings returns the most recent learnings, newest first.
func (m *MemoryStore) ListLearnings(limit int) ([]*models.Learning, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Learning, 0, len(m.learnings))
	for i := len(m.learnings) - 1; i >= 0; i-- {
		c := *m.learnings[i]
		out = append(out, &c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
