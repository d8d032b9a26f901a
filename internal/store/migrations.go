package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per session; ended_at stays NULL while it runs.
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			peak_sync REAL NOT NULL DEFAULT 0,
			avg_sync REAL NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			score REAL NOT NULL,
			level TEXT NOT NULL,
			raw_score REAL NOT NULL,
			hr_sync REAL NOT NULL,
			br_sync REAL NOT NULL,
			hand_score REAL NOT NULL,
			eye_contact INTEGER NOT NULL,
			both_smiling INTEGER NOT NULL,
			heart_rate_a REAL NOT NULL,
			heart_rate_b REAL NOT NULL,
			breathing_rate_a REAL NOT NULL,
			breathing_rate_b REAL NOT NULL,
			logged_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_snapshots_session_id ON snapshots(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
