// Package sqlite keeps a small index of past search sessions so the API can
// list them without re-reading manifest files. The index is advisory; losing
// it loses history, never content.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trendsift/viral-engine/api/types"
)

// Session statuses as stored in the index.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Session is one row of the session index.
type Session struct {
	ID           string     `json:"id"`
	Query        string     `json:"query"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	TotalContent int        `json:"total_content"`
	ViralContent int        `json:"viral_content"`
	ManifestPath string     `json:"manifest_path,omitempty"`
	Error        string     `json:"error,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	completed_at DATETIME,
	total_content INTEGER NOT NULL DEFAULT 0,
	viral_content INTEGER NOT NULL DEFAULT 0,
	manifest_path TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS sessions_started_at ON sessions(started_at);
`

// Store is the sqlite-backed session index.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the index at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening session index: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying session index schema: %w", err)
	}
	return &Store{db: db}, nil
}

// CreateSession records a session the moment it starts.
func (s *Store) CreateSession(ctx context.Context, id, query string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, query, status, started_at) VALUES (?, ?, ?, ?)`,
		id, query, StatusRunning, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording session %s: %w", id, err)
	}
	return nil
}

// CompleteSession marks a session finished and stores its outcome.
func (s *Store) CompleteSession(ctx context.Context, id string, manifest *types.SessionManifest, manifestPath string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET status = ?, completed_at = ?, total_content = ?, viral_content = ?, manifest_path = ?
		 WHERE id = ?`,
		StatusCompleted, time.Now().UTC(), manifest.TotalContent, manifest.ViralContent, manifestPath, id)
	if err != nil {
		return fmt.Errorf("completing session %s: %w", id, err)
	}
	return nil
}

// FailSession marks a session failed with the reason.
func (s *Store) FailSession(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		StatusFailed, time.Now().UTC(), reason, id)
	if err != nil {
		return fmt.Errorf("failing session %s: %w", id, err)
	}
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, status, started_at, completed_at, total_content, viral_content, manifest_path, error
		 FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var completedAt sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.Query, &sess.Status, &sess.StartedAt, &completedAt,
			&sess.TotalContent, &sess.ViralContent, &sess.ManifestPath, &sess.Error); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			sess.CompletedAt = &t
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
