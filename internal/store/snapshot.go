package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Snapshot is one logged tick of a session.
type Snapshot struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"session_id"`
	Score          float64   `json:"score"`
	Level          string    `json:"level"`
	RawScore       float64   `json:"raw_score"`
	HRSync         float64   `json:"hr_sync"`
	BRSync         float64   `json:"br_sync"`
	HandScore      float64   `json:"hand_score"`
	EyeContact     bool      `json:"eye_contact"`
	BothSmiling    bool      `json:"both_smiling"`
	HeartRateA     float64   `json:"heart_rate_a"`
	HeartRateB     float64   `json:"heart_rate_b"`
	BreathingRateA float64   `json:"breathing_rate_a"`
	BreathingRateB float64   `json:"breathing_rate_b"`
	LoggedAt       time.Time `json:"logged_at"`
}

// SnapshotRepository stores session snapshots.
type SnapshotRepository struct {
	db *sql.DB
}

// Snapshots returns the snapshot repository for this store.
func (s *Store) Snapshots() *SnapshotRepository {
	return &SnapshotRepository{db: s.db}
}

// Create inserts a snapshot and sets its ID. LoggedAt defaults to now.
func (r *SnapshotRepository) Create(snap *Snapshot) error {
	if snap.LoggedAt.IsZero() {
		snap.LoggedAt = time.Now()
	}
	snap.LoggedAt = snap.LoggedAt.UTC()

	result, err := r.db.Exec(
		`INSERT INTO snapshots (session_id, score, level, raw_score, hr_sync, br_sync, hand_score,
			eye_contact, both_smiling, heart_rate_a, heart_rate_b, breathing_rate_a, breathing_rate_b, logged_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SessionID, snap.Score, snap.Level, snap.RawScore, snap.HRSync, snap.BRSync, snap.HandScore,
		snap.EyeContact, snap.BothSmiling, snap.HeartRateA, snap.HeartRateB,
		snap.BreathingRateA, snap.BreathingRateB, snap.LoggedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	snap.ID, err = result.LastInsertId()
	return err
}

// ListBySession returns a session's snapshots in logging order.
func (r *SnapshotRepository) ListBySession(sessionID string) ([]Snapshot, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, score, level, raw_score, hr_sync, br_sync, hand_score,
			eye_contact, both_smiling, heart_rate_a, heart_rate_b, breathing_rate_a, breathing_rate_b, logged_at
		 FROM snapshots WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(
			&s.ID, &s.SessionID, &s.Score, &s.Level, &s.RawScore, &s.HRSync, &s.BRSync, &s.HandScore,
			&s.EyeContact, &s.BothSmiling, &s.HeartRateA, &s.HeartRateB,
			&s.BreathingRateA, &s.BreathingRateB, &s.LoggedAt,
		); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}

	return snaps, rows.Err()
}

// CountBySession returns the number of snapshots logged for a session.
func (r *SnapshotRepository) CountBySession(sessionID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM snapshots WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
