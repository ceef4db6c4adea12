// Package state provides persistence for tasks, agents, sessions, and learnings.
// It ships three backends: SQLite (default), Postgres, and an in-memory store
// used by tests and ephemeral runs.
package state

import (
	"io"
	"time"

	"github.com/kelhray/dispatch/pkg/models"
)

// TaskFilter narrows ListTasks results. Zero-valued fields are ignored.
type TaskFilter struct {
	// Status filters by exact task status.
	Status models.TaskStatus
	// Type filters by exact task type.
	Type models.TaskType
	// CreatedAfter keeps tasks created strictly after the given instant.
	CreatedAfter *time.Time
	// CreatedBefore keeps tasks created strictly before the given instant.
	CreatedBefore *time.Time
}

// AgentFilter narrows ListAgents results. Zero-valued fields are ignored.
type AgentFilter struct {
	// Status filters by exact agent status.
	Status models.AgentStatus
}

// TaskStore handles task persistence.
type TaskStore interface {
	CreateTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	UpdateTask(t *models.Task) error
	ListTasks(f TaskFilter) ([]*models.Task, error)
}

// AgentStore handles agent persistence.
type AgentStore interface {
	CreateAgent(a *models.Agent) error
	GetAgent(id string) (*models.Agent, error)
	UpdateAgent(a *models.Agent) error
	DeleteAgent(id string) error
	ListAgents(f AgentFilter) ([]*models.Agent, error)
}

// SessionStore handles session persistence.
type SessionStore interface {
	CreateSession(s *models.Session) error
	GetSession(id string) (*models.Session, error)
	UpdateSession(s *models.Session) error
	ListSessionsByTask(taskID string) ([]*models.Session, error)
}

// LearningStore handles learning persistence.
type LearningStore interface {
	CreateLearning(l *models.Learning) error
	ListLearnings(limit int) ([]*models.Learning, error)
}

// Migrator applies pending schema migrations.
type Migrator interface {
	Migrate() error
}

// Store is the full persistence contract the orchestration engine depends on.
// It composes focused sub-interfaces so components can declare only what they
// use. The engine assumes read-your-writes consistency for a single caller and
// never requires multi-record transactions.
type Store interface {
	io.Closer
	Migrator
	TaskStore
	AgentStore
	SessionStore
	LearningStore
}

// Compile-time verification that all backends implement the contract.
var (
	_ Store = (*DB)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
