package types

import (
	"time"
)

// Wire-level event types exchanged over the monitoring channel.
// Inbound frames carry "heartbeat" or "violation"; the server fans out
// "studentViolation" to every connection on the same exam.
const (
	EventTypeHeartbeat        = "heartbeat"
	EventTypeViolation        = "violation"
	EventTypeStudentViolation = "studentViolation"
)

// Canonical violation descriptions emitted by the client monitoring agent.
// The three detectors are independent and may co-fire for one user action;
// the server records each event as received.
const (
	ViolationFullscreenExit = "Exited fullscreen mode"
	ViolationTabSwitch      = "Tab/window switched away"
	ViolationFocusLoss      = "Window lost focus"
)

// ExamSession represents one student's live attempt at one exam.
// The violation log is append-only and insertion order is meaningful.
// At most one session per (exam, student) pair is active at any time;
// the store enforces this on creation.
type ExamSession struct {
	ID           string    `json:"id"`
	ExamID       string    `json:"examId"`
	StudentID    string    `json:"studentId"`
	StartedAt    time.Time `json:"startedAt"`
	LastActivity time.Time `json:"lastActivity"`
	Violations   []string  `json:"violations"`
	IsActive     bool      `json:"isActive"`
}

// Event is an inbound frame from a monitoring client. The exam is not part
// of the frame; it is bound to the connection at handshake time. Timestamps
// are client-supplied and treated as display hints only; the server assigns
// its own timestamps for the persisted record.
type Event struct {
	Type      string `json:"type"`
	StudentID string `json:"studentId"`
	Violation string `json:"violation,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Validate checks that the event carries the fields its type requires.
func (e *Event) Validate() error {
	switch e.Type {
	case EventTypeHeartbeat:
		if e.StudentID == "" {
			return ErrMissingStudentID
		}
	case EventTypeViolation:
		if e.StudentID == "" {
			return ErrMissingStudentID
		}
		if e.Violation == "" {
			return ErrMissingViolation
		}
	default:
		return ErrUnknownEventType
	}
	return nil
}

// ViolationBroadcast is the frame fanned out to every connection on an exam
// after a violation has been durably appended to the session record. The
// timestamp is server-assigned at receipt time.
type ViolationBroadcast struct {
	Type      string `json:"type"`
	StudentID string `json:"studentId"`
	Violation string `json:"violation"`
	Timestamp string `json:"timestamp"`
}

// NewViolationBroadcast builds the fan-out frame for a persisted violation.
func NewViolationBroadcast(studentID, violation string, at time.Time) *ViolationBroadcast {
	return &ViolationBroadcast{
		Type:      EventTypeStudentViolation,
		StudentID: studentID,
		Violation: violation,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}
