package database

import (
	"database/sql"
	"fmt"
)

// schema holds the full DDL. Statements are idempotent so EnsureSchema can
// run on every startup.
const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_key TEXT PRIMARY KEY,
		alias_key   TEXT,
		owner_id    TEXT NOT NULL,
		created_at  DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_alias ON sessions(alias_key);

	CREATE TABLE IF NOT EXISTS questions (
		id                 TEXT PRIMARY KEY,
		session_key        TEXT,
		owner_id           TEXT,
		text               TEXT NOT NULL,
		options            TEXT NOT NULL,
		time_limit_seconds INTEGER NOT NULL DEFAULT 0,
		created_at         DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_questions_session ON questions(session_key);
	CREATE INDEX IF NOT EXISTS idx_questions_owner ON questions(owner_id);

	CREATE TABLE IF NOT EXISTS participant_events (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		session_key    TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		name           TEXT,
		contact        TEXT,
		status         TEXT NOT NULL,
		timestamp      DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_participant_events_session ON participant_events(session_key, timestamp);
`

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
