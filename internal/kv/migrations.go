package kv

// runMigrations creates the tables that emulate Redis strings and lists.
func (s *SQLite) runMigrations() error {
	migrations := []string{
		// String keys; expires_at is unix nanoseconds, NULL for no expiry
		`CREATE TABLE IF NOT EXISTS kv_strings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at INTEGER
		)`,

		// List keys; id gives insertion order
		`CREATE TABLE IF NOT EXISTS kv_lists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_kv_lists_key ON kv_lists(key, id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
