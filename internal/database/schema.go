package database

import (
	"database/sql"
	"fmt"
)

// schema is applied at open time. The partial unique index enforces the
// at-most-one-active-session-per-(exam, student) invariant at the store
// layer; CreateSession additionally end-then-creates so the constraint is
// never hit in normal operation.
const schema = `
CREATE TABLE IF NOT EXISTS exam_sessions (
	id            TEXT PRIMARY KEY,
	exam_id       TEXT NOT NULL,
	student_id    TEXT NOT NULL,
	started_at    DATETIME NOT NULL,
	last_activity DATETIME NOT NULL,
	violations    TEXT NOT NULL DEFAULT '[]',
	is_active     INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_exam_sessions_exam
	ON exam_sessions(exam_id, started_at);

CREATE UNIQUE INDEX IF NOT EXISTS idx_exam_sessions_active_pair
	ON exam_sessions(exam_id, student_id) WHERE is_active = 1;
`

// initSchema creates tables and indexes if they do not exist.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// applySQLitePragmas applies performance and integrity settings.
func applySQLitePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
