package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/kelhray/dispatch/pkg/models"
)

const agentColumns = `id, name, status, capabilities, current_task_id,
	current_session_id, tasks_completed, tasks_failed, avg_duration_ms,
	success_rate, last_active_at, created_at, config`

// CreateAgent stores a new agent.
func (db *DB) CreateAgent(a *models.Agent) error {
	caps, err := marshalJSON(a.Capabilities)
	if err != nil {
		return err
	}
	config, err := marshalJSON(a.Config)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	_, err = db.conn.Exec(`
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Name, string(a.Status), caps,
		nullIfEmpty(a.CurrentTaskID), nullIfEmpty(a.CurrentSessionID),
		a.TasksCompleted, a.TasksFailed, a.AvgDurationMs, a.SuccessRate,
		formatTime(a.LastActiveAt), formatTime(a.CreatedAt), config)
	if err != nil {
		return &models.StoreError{Op: "create agent", Err: err}
	}
	return nil
}

// GetAgent retrieves an agent by ID.
func (db *DB) GetAgent(id string) (*models.Agent, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	row := db.conn.QueryRow(`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "agent", ID: id}
	}
	if err != nil {
		return nil, &models.StoreError{Op: "get agent", Err: err}
	}
	return a, nil
}

// UpdateAgent replaces the stored agent with the given record.
func (db *DB) UpdateAgent(a *models.Agent) error {
	caps, err := marshalJSON(a.Capabilities)
	if err != nil {
		return err
	}
	config, err := marshalJSON(a.Config)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.conn.Exec(`
		UPDATE agents SET name = ?, status = ?, capabilities = ?,
			current_task_id = ?, current_session_id = ?, tasks_completed = ?,
			tasks_failed = ?, avg_duration_ms = ?, success_rate = ?,
			last_active_at = ?, config = ?
		WHERE id = ?
	`, a.Name, string(a.Status), caps,
		nullIfEmpty(a.CurrentTaskID), nullIfEmpty(a.CurrentSessionID),
		a.TasksCompleted, a.TasksFailed, a.AvgDurationMs, a.SuccessRate,
		formatTime(a.LastActiveAt), config, a.ID)
	if err != nil {
		return &models.StoreError{Op: "update agent", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &models.StoreError{Op: "update agent", Err: err}
	}
	if n == 0 {
		return &models.NotFoundError{Resource: "agent", ID: a.ID}
	}
	return nil
}

// DeleteAgent removes an agent record.
func (db *DB) DeleteAgent(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.conn.Exec(`DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return &models.StoreError{Op: "delete agent", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &models.StoreError{Op: "delete agent", Err: err}
	}
	if n == 0 {
		return &models.NotFoundError{Resource: "agent", ID: id}
	}
	return nil
}

// ListAgents returns agents matching the filter, ordered by ID.
func (db *DB) ListAgents(f AgentFilter) ([]*models.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY id`

	db.mu.RLock()
	defer db.mu.RUnlock()
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, &models.StoreError{Op: "list agents", Err: err}
	}
	defer rows.Close()

	var out []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, &models.StoreError{Op: "list agents", Err: err}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StoreError{Op: "list agents", Err: err}
	}
	return out, nil
}

func scanAgent(row rowScanner) (*models.Agent, error) {
	var a models.Agent
	var status, lastActiveAt, createdAt string
	var caps, currentTaskID, currentSessionID, config sql.NullString

	err := row.Scan(&a.ID, &a.Name, &status, &caps, &currentTaskID,
		&currentSessionID, &a.TasksCompleted, &a.TasksFailed, &a.AvgDurationMs,
		&a.SuccessRate, &lastActiveAt, &createdAt, &config)
	if err != nil {
		return nil, err
	}

	a.Status = models.AgentStatus(status)
	a.CurrentTaskID = currentTaskID.String
	a.CurrentSessionID = currentSessionID.String

	if a.LastActiveAt, err = parseTime(lastActiveAt); err != nil {
		return nil, fmt.Errorf("parse last_active_at: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	if err := unmarshalJSON(caps, &a.Capabilities); err != nil {
		return nil, fmt.Errorf("parse capabilities: %w", err)
	}
	if err := unmarshalJSON(config, &a.Config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &a, nil
}
