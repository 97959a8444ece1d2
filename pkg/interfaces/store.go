package interfaces

import (
	"context"

	"proctorboard/pkg/types"
)

// SessionStore is the durable record of exam sessions consumed by the
// monitoring core. One row per (exam, student) active attempt.
type SessionStore interface {
	// CreateSession starts a new attempt for (examID, studentID). Any
	// session still active for the same pair is ended first, atomically,
	// so at most one active row per pair exists afterwards.
	CreateSession(ctx context.Context, examID, studentID string) (*types.ExamSession, error)

	// GetActiveSession returns the active session for (examID, studentID),
	// or ErrSessionNotFound when the student has no active attempt.
	GetActiveSession(ctx context.Context, examID, studentID string) (*types.ExamSession, error)

	// UpdateSessionActivity sets the session's last-activity timestamp to
	// the current server time. Last activity never moves backwards.
	UpdateSessionActivity(ctx context.Context, sessionID string) error

	// AddViolation appends a violation record to the session's log.
	// The log is append-only; insertion order is preserved.
	AddViolation(ctx context.Context, sessionID, violation string) error

	// EndSession marks the session inactive. Returns ErrSessionNotFound
	// if no such session exists.
	EndSession(ctx context.Context, sessionID string) error

	// ListSessionsByExam returns every session for an exam, active or not,
	// for the teacher monitor's snapshot poll.
	ListSessionsByExam(ctx context.Context, examID string) ([]*types.ExamSession, error)

	// HealthCheck verifies store connectivity.
	HealthCheck(ctx context.Context) error

	// Close releases store resources after pending writes complete.
	Close() error
}
