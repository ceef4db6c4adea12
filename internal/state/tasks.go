package state

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kelhray/dispatch/pkg/models"
)

const taskColumns = `id, title, description, type, status, priority, assigned_to,
	session_id, progress, tags, created_at, updated_at, started_at, completed_at,
	result, error`

// CreateTask stores a new task.
func (db *DB) CreateTask(t *models.Task) error {
	tags, err := marshalJSON(t.Tags)
	if err != nil {
		return err
	}
	result, err := marshalJSON(t.Result)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	_, err = db.conn.Exec(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, string(t.Type), string(t.Status), string(t.Priority),
		nullIfEmpty(t.AssignedTo), nullIfEmpty(t.SessionID), t.Progress, tags,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
		formatNullableTime(t.StartedAt), formatNullableTime(t.CompletedAt),
		result, nullIfEmpty(t.Error))
	if err != nil {
		return &models.StoreError{Op: "create task", Err: err}
	}
	return nil
}

// GetTask retrieves a task by ID.
func (db *DB) GetTask(id string) (*models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	row := db.conn.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "task", ID: id}
	}
	if err != nil {
		return nil, &models.StoreError{Op: "get task", Err: err}
	}
	return t, nil
}

// UpdateTask replaces the stored task with the given record.
func (db *DB) UpdateTask(t *models.Task) error {
	tags, err := marshalJSON(t.Tags)
	if err != nil {
		return err
	}
	result, err := marshalJSON(t.Result)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.conn.Exec(`
		UPDATE tasks SET title = ?, description = ?, type = ?, status = ?,
			priority = ?, assigned_to = ?, session_id = ?, progress = ?, tags = ?,
			updated_at = ?, started_at = ?, completed_at = ?, result = ?, error = ?
		WHERE id = ?
	`, t.Title, t.Description, string(t.Type), string(t.Status), string(t.Priority),
		nullIfEmpty(t.AssignedTo), nullIfEmpty(t.SessionID), t.Progress, tags,
		formatTime(t.UpdatedAt), formatNullableTime(t.StartedAt),
		formatNullableTime(t.CompletedAt), result, nullIfEmpty(t.Error), t.ID)
	if err != nil {
		return &models.StoreError{Op: "update task", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &models.StoreError{Op: "update task", Err: err}
	}
	if n == 0 {
		return &models.NotFoundError{Resource: "task", ID: t.ID}
	}
	return nil
}

// ListTasks returns tasks matching the filter, ordered by creation time.
func (db *DB) ListTasks(f TaskFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.CreatedAfter != nil {
		conds = append(conds, "created_at > ?")
		args = append(args, formatTime(*f.CreatedAfter))
	}
	if f.CreatedBefore != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, formatTime(*f.CreatedBefore))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"

	db.mu.RLock()
	defer db.mu.RUnlock()
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, &models.StoreError{Op: "list tasks", Err: err}
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, &models.StoreError{Op: "list tasks", Err: err}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StoreError{Op: "list tasks", Err: err}
	}
	return out, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var typ, status, priority, createdAt, updatedAt string
	var description, assignedTo, sessionID, tags, startedAt, completedAt, result, errMsg sql.NullString

	err := row.Scan(&t.ID, &t.Title, &description, &typ, &status, &priority,
		&assignedTo, &sessionID, &t.Progress, &tags, &createdAt, &updatedAt,
		&startedAt, &completedAt, &result, &errMsg)
	if err != nil {
		return nil, err
	}

	t.Description = description.String
	t.Type = models.TaskType(typ)
	t.Status = models.TaskStatus(status)
	t.Priority = models.Priority(priority)
	t.AssignedTo = assignedTo.String
	t.SessionID = sessionID.String
	t.Error = errMsg.String

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)

	if err := unmarshalJSON(tags, &t.Tags); err != nil {
		return nil, fmt.Errorf("parse tags: %w", err)
	}
	if err := unmarshalJSON(result, &t.Result); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &t, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
