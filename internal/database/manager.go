package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"proctorboard/pkg/interfaces"
	"proctorboard/pkg/types"
)

// Config holds connection settings for the session store.
type Config struct {
	Path            string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Manager implements interfaces.SessionStore on SQLite.
// All writes funnel through a single goroutine; SQLite allows one writer
// at a time and serializing writes here avoids lock contention while reads
// stay concurrent on the pooled connections.
type Manager struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents a queued database write.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and schema, and starts
// the writer goroutine.
func NewManager(cfg *Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := applySQLitePragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	manager := &Manager{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine.
// A failed write is retried exactly once after 5 seconds.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && !errors.Is(err, interfaces.ErrSessionNotFound) {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Session store write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("session store is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("session store is shutting down")
	}
}

// CreateSession starts a new attempt for (examID, studentID). Any prior
// active session for the pair is ended in the same transaction, so the
// active-row uniqueness invariant holds across double starts.
func (m *Manager) CreateSession(ctx context.Context, examID, studentID string) (*types.ExamSession, error) {
	now := time.Now().UTC()
	session := &types.ExamSession{
		ID:           uuid.New().String(),
		ExamID:       examID,
		StudentID:    studentID,
		StartedAt:    now,
		LastActivity: now,
		Violations:   []string{},
		IsActive:     true,
	}

	err := m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		// End-then-create: deactivate whatever is still active for the
		// pair before inserting the new row.
		_, err = tx.ExecContext(ctx,
			`UPDATE exam_sessions SET is_active = 0 WHERE exam_id = ? AND student_id = ? AND is_active = 1`,
			examID, studentID,
		)
		if err != nil {
			return fmt.Errorf("failed to end prior session: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO exam_sessions (id, exam_id, student_id, started_at, last_activity, violations, is_active)
			 VALUES (?, ?, ?, ?, ?, '[]', 1)`,
			session.ID, session.ExamID, session.StudentID, session.StartedAt, session.LastActivity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit session creation: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// GetActiveSession returns the active session for (examID, studentID).
func (m *Manager) GetActiveSession(ctx context.Context, examID, studentID string) (*types.ExamSession, error) {
	query := `
		SELECT id, exam_id, student_id, started_at, last_activity, violations, is_active
		FROM exam_sessions
		WHERE exam_id = ? AND student_id = ? AND is_active = 1
	`

	row := m.db.QueryRowContext(ctx, query, examID, studentID)

	session, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query active session: %w", err)
	}

	return session, nil
}

// UpdateSessionActivity stamps the session's last-activity time with the
// current server time. The timestamp is server-assigned to keep the
// persisted record immune to client clock skew.
func (m *Manager) UpdateSessionActivity(ctx context.Context, sessionID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`UPDATE exam_sessions SET last_activity = ? WHERE id = ?`,
			time.Now().UTC(), sessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to update session activity: %w", err)
		}
		return nil
	})
}

// AddViolation appends one violation record to the session's log. The log
// is stored as a JSON array; read-modify-write is safe because all writes
// run on the single writer goroutine.
func (m *Manager) AddViolation(ctx context.Context, sessionID, violation string) error {
	return m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var violationsJSON string
		err = tx.QueryRowContext(ctx,
			`SELECT violations FROM exam_sessions WHERE id = ?`, sessionID,
		).Scan(&violationsJSON)
		if err != nil {
			if err == sql.ErrNoRows {
				return interfaces.ErrSessionNotFound
			}
			return fmt.Errorf("failed to read violation log: %w", err)
		}

		var violations []string
		if err := json.Unmarshal([]byte(violationsJSON), &violations); err != nil {
			return fmt.Errorf("failed to unmarshal violation log: %w", err)
		}

		violations = append(violations, violation)
		updated, err := json.Marshal(violations)
		if err != nil {
			return fmt.Errorf("failed to marshal violation log: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE exam_sessions SET violations = ? WHERE id = ?`,
			string(updated), sessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to update violation log: %w", err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit violation: %w", err)
		}

		return nil
	})
}

// EndSession marks the session inactive. Ending is one-way; the row is
// never deleted here, retention is a store concern.
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE exam_sessions SET is_active = 0 WHERE id = ?`,
			sessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check end session result: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrSessionNotFound
		}

		return nil
	})
}

// ListSessionsByExam returns every session for an exam, newest first,
// for the teacher monitor's snapshot poll.
func (m *Manager) ListSessionsByExam(ctx context.Context, examID string) ([]*types.ExamSession, error) {
	query := `
		SELECT id, exam_id, student_id, started_at, last_activity, violations, is_active
		FROM exam_sessions
		WHERE exam_id = ?
		ORDER BY started_at DESC
	`

	rows, err := m.db.QueryContext(ctx, query, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exam sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.ExamSession

	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

// HealthCheck validates database connectivity and basic read access.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM exam_sessions").Scan(&count)
	if err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// Close shuts down the writer goroutine and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*types.ExamSession, error) {
	var session types.ExamSession
	var violationsJSON string
	var isActive int

	err := row.Scan(
		&session.ID,
		&session.ExamID,
		&session.StudentID,
		&session.StartedAt,
		&session.LastActivity,
		&violationsJSON,
		&isActive,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(violationsJSON), &session.Violations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal violation log: %w", err)
	}

	session.IsActive = isActive == 1
	return &session, nil
}
