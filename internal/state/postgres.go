package state

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/kelhray/dispatch/pkg/models"
)

// PostgresStore is a Postgres-backed Store implementation for deployments
// that share state across multiple dispatch processes.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to Postgres using the given connection string.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping postgres")
	}
	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			priority TEXT NOT NULL DEFAULT 'medium',
			assigned_to TEXT,
			session_id TEXT,
			progress INTEGER NOT NULL DEFAULT 0,
			tags JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			result JSONB,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at)`,
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'idle',
			capabilities JSONB,
			current_task_id TEXT,
			current_session_id TEXT,
			tasks_completed INTEGER NOT NULL DEFAULT 0,
			tasks_failed INTEGER NOT NULL DEFAULT 0,
			avg_duration_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
			success_rate DOUBLE PRECISION NOT NULL DEFAULT 100,
			last_active_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			config JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			external_id TEXT,
			status TEXT NOT NULL DEFAULT 'starting',
			log JSONB,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			output TEXT,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_task_id ON sessions(task_id)`,
		`CREATE TABLE IF NOT EXISTS learnings (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			agent_id TEXT,
			text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_learnings_created_at ON learnings(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "apply postgres migration")
		}
	}
	return nil
}

// pgTask is the sqlx row shape for the tasks table.
type pgTask struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	Type        string         `db:"type"`
	Status      string         `db:"status"`
	Priority    string         `db:"priority"`
	AssignedTo  sql.NullString `db:"assigned_to"`
	SessionID   sql.NullString `db:"session_id"`
	Progress    int            `db:"progress"`
	Tags        sql.NullString `db:"tags"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	StartedAt   *time.Time     `db:"started_at"`
	CompletedAt *time.Time     `db:"completed_at"`
	Result      sql.NullString `db:"result"`
	Error       sql.NullString `db:"error"`
}

func (r *pgTask) toModel() (*models.Task, error) {
	t := &models.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description.String,
		Type:        models.TaskType(r.Type),
		Status:      models.TaskStatus(r.Status),
		Priority:    models.Priority(r.Priority),
		AssignedTo:  r.AssignedTo.String,
		SessionID:   r.SessionID.String,
		Progress:    r.Progress,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Error:       r.Error.String,
	}
	if err := unmarshalJSON(r.Tags, &t.Tags); err != nil {
		return nil, errors.Wrap(err, "parse tags")
	}
	if err := unmarshalJSON(r.Result, &t.Result); err != nil {
		return nil, errors.Wrap(err, "parse result")
	}
	return t, nil
}

// CreateTask stores a new task.
func (s *PostgresStore) CreateTask(t *models.Task) error {
	tags, err := marshalJSON(t.Tags)
	if err != nil {
		return err
	}
	result, err := marshalJSON(t.Result)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO tasks (id, title, description, type, status, priority,
			assigned_to, session_id, progress, tags, created_at, updated_at,
			started_at, completed_at, result, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, t.ID, t.Title, nullIfEmpty(t.Description), string(t.Type), string(t.Status),
		string(t.Priority), nullIfEmpty(t.AssignedTo), nullIfEmpty(t.SessionID),
		t.Progress, tags, t.CreatedAt, t.UpdatedAt, t.StartedAt, t.CompletedAt,
		result, nullIfEmpty(t.Error))
	if err != nil {
		return &models.StoreError{Op: "create task", Err: err}
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *PostgresStore) GetTask(id string) (*models.Task, error) {
	var row pgTask
	err := s.db.Get(&row, `SELECT * FROM tasks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "task", ID: id}
	}
	if err != nil {
		return nil, &models.StoreError{Op: "get task", Err: err}
	}
	return row.toModel()
}

// UpdateTask replaces the stored task with the given record.
func (s *PostgresStore) UpdateTask(t *models.Task) error {
	tags, err := marshalJSON(t.Tags)
	if err != nil {
		return err
	}
	result, err := marshalJSON(t.Result)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE tasks SET title = $1, description = $2, type = $3, status = $4,
			priority = $5, assigned_to = $6, session_id = $7, progress = $8,
			tags = $9, updated_at = $10, started_at = $11, completed_at = $12,
			result = $13, error = $14
		WHERE id = $15
	`, t.Title, nullIfEmpty(t.Description), string(t.Type), string(t.Status),
		string(t.Priority), nullIfEmpty(t.AssignedTo), nullIfEmpty(t.SessionID),
		t.Progress, tags, t.UpdatedAt, t.StartedAt, t.CompletedAt, result,
		nullIfEmpty(t.Error), t.ID)
	if err != nil {
		return &models.StoreError{Op: "update task", Err: err}
	}
	return checkAffected(res, "task", t.ID)
}

// ListTasks returns tasks matching the filter, ordered by creation time.
func (s *PostgresStore) ListTasks(f TaskFilter) ([]*models.Task, error) {
	query := `SELECT * FROM tasks`
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", placeholder(len(args)), 1))
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.Type != "" {
		add("type = ?", string(f.Type))
	}
	if f.CreatedAfter != nil {
		add("created_at > ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		add("created_at < ?", *f.CreatedBefore)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"

	var rows []pgTask
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, &models.StoreError{Op: "list tasks", Err: err}
	}
	out := make([]*models.Task, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toModel()
		if err != nil {
			return nil, &models.StoreError{Op: "list tasks", Err: err}
		}
		out = append(out, t)
	}
	return out, nil
}

// pgAgent is the sqlx row shape for the agents table.
type pgAgent struct {
	ID               string         `db:"id"`
	Name             string         `db:"name"`
	Status           string         `db:"status"`
	Capabilities     sql.NullString `db:"capabilities"`
	CurrentTaskID    sql.NullString `db:"current_task_id"`
	CurrentSessionID sql.NullString `db:"current_session_id"`
	TasksCompleted   int            `db:"tasks_completed"`
	TasksFailed      int            `db:"tasks_failed"`
	AvgDurationMs    float64        `db:"avg_duration_ms"`
	SuccessRate      float64        `db:"success_rate"`
	LastActiveAt     time.Time      `db:"last_active_at"`
	CreatedAt        time.Time      `db:"created_at"`
	Config           sql.NullString `db:"config"`
}

func (r *pgAgent) toModel() (*models.Agent, error) {
	a := &models.Agent{
		ID:               r.ID,
		Name:             r.Name,
		Status:           models.AgentStatus(r.Status),
		CurrentTaskID:    r.CurrentTaskID.String,
		CurrentSessionID: r.CurrentSessionID.String,
		TasksCompleted:   r.TasksCompleted,
		TasksFailed:      r.TasksFailed,
		AvgDurationMs:    r.AvgDurationMs,
		SuccessRate:      r.SuccessRate,
		LastActiveAt:     r.LastActiveAt,
		CreatedAt:        r.CreatedAt,
	}
	if err := unmarshalJSON(r.Capabilities, &a.Capabilities); err != nil {
		return nil, errors.Wrap(err, "parse capabilities")
	}
	if err := unmarshalJSON(r.Config, &a.Config); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return a, nil
}

// CreateAgent stores a new agent.
func (s *PostgresStore) CreateAgent(a *models.Agent) error {
	caps, err := marshalJSON(a.Capabilities)
	if err != nil {
		return err
	}
	config, err := marshalJSON(a.Config)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO agents (id, name, status, capabilities, current_task_id,
			current_session_id, tasks_completed, tasks_failed, avg_duration_ms,
			success_rate, last_active_at, created_at, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, a.ID, a.Name, string(a.Status), caps, nullIfEmpty(a.CurrentTaskID),
		nullIfEmpty(a.CurrentSessionID), a.TasksCompleted, a.TasksFailed,
		a.AvgDurationMs, a.SuccessRate, a.LastActiveAt, a.CreatedAt, config)
	if err != nil {
		return &models.StoreError{Op: "create agent", Err: err}
	}
	return nil
}

// GetAgent retrieves an agent by ID.
func (s *PostgresStore) GetAgent(id string) (*models.Agent, error) {
	var row pgAgent
	err := s.db.Get(&row, `SELECT * FROM agents WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "agent", ID: id}
	}
	if err != nil {
		return nil, &models.StoreError{Op: "get agent", Err: err}
	}
	return row.toModel()
}

// UpdateAgent replaces the stored agent with the given record.
func (s *PostgresStore) UpdateAgent(a *models.Agent) error {
	caps, err := marshalJSON(a.Capabilities)
	if err != nil {
		return err
	}
	config, err := marshalJSON(a.Config)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE agents SET name = $1, status = $2, capabilities = $3,
			current_task_id = $4, current_session_id = $5, tasks_completed = $6,
			tasks_failed = $7, avg_duration_ms = $8, success_rate = $9,
			last_active_at = $10, config = $11
		WHERE id = $12
	`, a.Name, string(a.Status), caps, nullIfEmpty(a.CurrentTaskID),
		nullIfEmpty(a.CurrentSessionID), a.TasksCompleted, a.TasksFailed,
		a.AvgDurationMs, a.SuccessRate, a.LastActiveAt, config, a.ID)
	if err != nil {
		return &models.StoreError{Op: "update agent", Err: err}
	}
	return checkAffected(res, "agent", a.ID)
}

// DeleteAgent removes an agent record.
func (s *PostgresStore) DeleteAgent(id string) error {
	res, err := s.db.Exec(`DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return &models.StoreError{Op: "delete agent", Err: err}
	}
	return checkAffected(res, "agent", id)
}

// ListAgents returns agents matching the filter, ordered by ID.
func (s *PostgresStore) ListAgents(f AgentFilter) ([]*models.Agent, error) {
	query := `SELECT * FROM agents`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY id`

	var rows []pgAgent
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, &models.StoreError{Op: "list agents", Err: err}
	}
	out := make([]*models.Agent, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toModel()
		if err != nil {
			return nil, &models.StoreError{Op: "list agents", Err: err}
		}
		out = append(out, a)
	}
	return out, nil
}

// pgSession is the sqlx row shape for the sessions table.
type pgSession struct {
	ID         string         `db:"id"`
	TaskID     string         `db:"task_id"`
	AgentID    string         `db:"agent_id"`
	ExternalID sql.NullString `db:"external_id"`
	Status     string         `db:"status"`
	Log        sql.NullString `db:"log"`
	StartedAt  time.Time      `db:"started_at"`
	EndedAt    *time.Time     `db:"ended_at"`
	Output     sql.NullString `db:"output"`
	Error      sql.NullString `db:"error"`
}

func (r *pgSession) toModel() (*models.Session, error) {
	s := &models.Session{
		ID:         r.ID,
		TaskID:     r.TaskID,
		AgentID:    r.AgentID,
		ExternalID: r.ExternalID.String,
		Status:     models.SessionStatus(r.Status),
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
		Output:     r.Output.String,
		Error:      r.Error.String,
	}
	if err := unmarshalJSON(r.Log, &s.Log); err != nil {
		return nil, errors.Wrap(err, "parse log")
	}
	return s, nil
}

// CreateSession stores a new session.
func (s *PostgresStore) CreateSession(sess *models.Session) error {
	logJSON, err := marshalJSON(sess.Log)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, task_id, agent_id, external_id, status, log,
			started_at, ended_at, output, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, sess.ID, sess.TaskID, sess.AgentID, nullIfEmpty(sess.ExternalID),
		string(sess.Status), logJSON, sess.StartedAt, sess.EndedAt,
		nullIfEmpty(sess.Output), nullIfEmpty(sess.Error))
	if err != nil {
		return &models.StoreError{Op: "create session", Err: err}
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *PostgresStore) GetSession(id string) (*models.Session, error) {
	var row pgSession
	err := s.db.Get(&row, `SELECT * FROM sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "session", ID: id}
	}
	if err != nil {
		return nil, &models.StoreError{Op: "get session", Err: err}
	}
	return row.toModel()
}

// UpdateSession replaces the stored session with the given record.
func (s *PostgresStore) UpdateSession(sess *models.Session) error {
	logJSON, err := marshalJSON(sess.Log)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE sessions SET external_id = $1, status = $2, log = $3,
			ended_at = $4, output = $5, error = $6
		WHERE id = $7
	`, nullIfEmpty(sess.ExternalID), string(sess.Status), logJSON, sess.EndedAt,
		nullIfEmpty(sess.Output), nullIfEmpty(sess.Error), sess.ID)
	if err != nil {
		return &models.StoreError{Op: "update session", Err: err}
	}
	return checkAffected(res, "session", sess.ID)
}

// ListSessionsByTask returns all sessions for the given task, oldest first.
func (s *PostgresStore) ListSessionsByTask(taskID string) ([]*models.Session, error) {
	var rows []pgSession
	err := s.db.Select(&rows, `SELECT * FROM sessions WHERE task_id = $1 ORDER BY started_at, id`, taskID)
	if err != nil {
		return nil, &models.StoreError{Op: "list sessions", Err: err}
	}
	out := make([]*models.Session, 0, len(rows))
	for i := range rows {
		sess, err := rows[i].toModel()
		if err != nil {
			return nil, &models.StoreError{Op: "list sessions", Err: err}
		}
		out = append(out, sess)
	}
	return out, nil
}

// CreateLearning stores a new learning.
func (s *PostgresStore) CreateLearning(l *models.Learning) error {
	_, err := s.db.Exec(`
		INSERT INTO learnings (id, task_id, agent_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, l.ID, l.TaskID, nullIfEmpty(l.AgentID), l.Text, l.CreatedAt)
	if err != nil {
		return &models.StoreError{Op: "create learning", Err: err}
	}
	return nil
}

// ListLearnings returns the most recent learnings, newest first.
func (s *PostgresStore) ListLearnings(limit int) ([]*models.Learning, error) {
	query := `SELECT id, task_id, agent_id, text, created_at FROM learnings ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &models.StoreError{Op: "list learnings", Err: err}
	}
	defer rows.Close()

	var out []*models.Learning
	for rows.Next() {
		var l models.Learning
		var agentID sql.NullString
		if err := rows.Scan(&l.ID, &l.TaskID, &agentID, &l.Text, &l.CreatedAt); err != nil {
			return nil, &models.StoreError{Op: "list learnings", Err: err}
		}
		l.AgentID = agentID.String
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StoreError{Op: "list learnings", Err: err}
	}
	return out, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func checkAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &models.StoreError{Op: "update " + resource, Err: err}
	}
	if n == 0 {
		return &models.NotFoundError{Resource: resource, ID: id}
	}
	return nil
}
