package models

import "github.com/google/uuid"

// NewTaskID returns a fresh task identifier.
func NewTaskID() string { return "task-" + uuid.New().String() }

// NewAgentID returns a fresh agent identifier.
func NewAgentID() string { return "agent-" + uuid.New().String() }

// NewSessionID returns a fresh session identifier.
func NewSessionID() string { return "sess-" + uuid.New().String() }

// NewLearningID returns a fresh learning identifier.
func NewLearningID() string { return "learn-" + uuid.New().String() }
