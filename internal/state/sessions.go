package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/kelhray/dispatch/pkg/models"
)

const sessionColumns = `id, task_id, agent_id, external_id, status, log,
	started_at, ended_at, output, error`

// CreateSession stores a new session.
func (db *DB) CreateSession(s *models.Session) error {
	logJSON, err := marshalJSON(s.Log)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	_, err = db.conn.Exec(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.TaskID, s.AgentID, nullIfEmpty(s.ExternalID), string(s.Status),
		logJSON, formatTime(s.StartedAt), formatNullableTime(s.EndedAt),
		nullIfEmpty(s.Output), nullIfEmpty(s.Error))
	if err != nil {
		return &models.StoreError{Op: "create session", Err: err}
	}
	return nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(id string) (*models.Session, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	row := db.conn.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "session", ID: id}
	}
	if err != nil {
		return nil, &models.StoreError{Op: "get session", Err: err}
	}
	return s, nil
}

// UpdateSession replaces the stored session with the given record.
func (db *DB) UpdateSession(s *models.Session) error {
	logJSON, err := marshalJSON(s.Log)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.conn.Exec(`
		UPDATE sessions SET external_id = ?, status = ?, log = ?, ended_at = ?,
			output = ?, error = ?
		WHERE id = ?
	`, nullIfEmpty(s.ExternalID), string(s.Status), logJSON,
		formatNullableTime(s.EndedAt), nullIfEmpty(s.Output), nullIfEmpty(s.Error), s.ID)
	if err != nil {
		return &models.StoreError{Op: "update session", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &models.StoreError{Op: "update session", Err: err}
	}
	if n == 0 {
		return &models.NotFoundError{Resource: "session", ID: s.ID}
	}
	return nil
}

// ListSessionsByTask returns all sessions for the given task, oldest first.
func (db *DB) ListSessionsByTask(taskID string) ([]*models.Session, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rows, err := db.conn.Query(`
		SELECT `+sessionColumns+` FROM sessions WHERE task_id = ? ORDER BY started_at, id
	`, taskID)
	if err != nil {
		return nil, &models.StoreError{Op: "list sessions", Err: err}
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, &models.StoreError{Op: "list sessions", Err: err}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StoreError{Op: "list sessions", Err: err}
	}
	return out, nil
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var status, startedAt string
	var externalID, logJSON, endedAt, output, errMsg sql.NullString

	err := row.Scan(&s.ID, &s.TaskID, &s.AgentID, &externalID, &status,
		&logJSON, &startedAt, &endedAt, &output, &errMsg)
	if err != nil {
		return nil, err
	}

	s.ExternalID = externalID.String
	s.Status = models.SessionStatus(status)
	s.Output = output.String
	s.Error = errMsg.String

	if s.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	s.EndedAt = parseNullableTime(endedAt)

	if err := unmarshalJSON(logJSON, &s.Log); err != nil {
		return nil, fmt.Errorf("parse log: %w", err)
	}
	return &s, nil
}
