package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is a persisted session summary.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	PeakSync  float64    `json:"peak_sync"`
	AvgSync   float64    `json:"avg_sync"`
}

// Active reports whether the session has not been ended.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// SessionRepository stores session records.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Start records a new session.
func (r *SessionRepository) Start(id string, startedAt time.Time) (*Session, error) {
	sess := &Session{ID: id, StartedAt: startedAt.UTC()}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, started_at) VALUES (?, ?)`,
		sess.ID, sess.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	return sess, nil
}

// End closes a session and stores the average and peak score of its
// snapshots. A session without snapshots keeps zero for both.
func (r *SessionRepository) End(id string, endedAt time.Time) (*Session, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var avg, peak sql.NullFloat64
	err = tx.QueryRow(
		`SELECT AVG(score), MAX(score) FROM snapshots WHERE session_id = ?`,
		id,
	).Scan(&avg, &peak)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize session: %w", err)
	}

	result, err := tx.Exec(
		`UPDATE sessions SET ended_at = ?, avg_sync = ?, peak_sync = ? WHERE id = ?`,
		endedAt.UTC(), avg.Float64, peak.Float64, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.Get(id)
}

// Get retrieves a session by ID.
func (r *SessionRepository) Get(id string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, started_at, ended_at, peak_sync, avg_sync FROM sessions WHERE id = ?`,
		id,
	)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List returns up to limit sessions, newest first. A limit of 0 or less
// returns every session.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, peak_sync, avg_sync
		 FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	sess := &Session{}
	var ended sql.NullTime

	if err := row.Scan(&sess.ID, &sess.StartedAt, &ended, &sess.PeakSync, &sess.AvgSync); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return sess, nil
}
