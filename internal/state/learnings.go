package state

import (
	"database/sql"
	"fmt"

	"github.com/kelhray/dispatch/pkg/models"
)

// CreateLearning stores a new learning.
func (db *DB) CreateLearning(l *models.Learning) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(`
		INSERT INTO learnings (id, task_id, agent_id, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, l.ID, l.TaskID, nullIfEmpty(l.AgentID), l.Text, formatTime(l.CreatedAt))
	if err != nil {
		return &models.StoreError{Op: "create learning", Err: err}
	}
	return nil
}

// ListLearnings returns the most recent learnings, newest first.
// A limit of 0 returns everything.
func (db *DB) ListLearnings(limit int) ([]*models.Learning, error) {
	query := `SELECT id, task_id, agent_id, text, created_at FROM learnings ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	db.mu.RLock()
	defer db.mu.RUnlock()
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, &models.StoreError{Op: "list learnings", Err: err}
	}
	defer rows.Close()

	var out []*models.Learning
	for rows.Next() {
		var l models.Learning
		var agentID sql.NullString
		var createdAt string
		if err := rows.Scan(&l.ID, &l.TaskID, &agentID, &l.Text, &createdAt); err != nil {
			return nil, &models.StoreError{Op: "list learnings", Err: err}
		}
		l.AgentID = agentID.String
		if l.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, &models.StoreError{Op: "list learnings", Err: fmt.Errorf("parse created_at: %w", err)}
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StoreError{Op: "list learnings", Err: err}
	}
	return out, nil
}
