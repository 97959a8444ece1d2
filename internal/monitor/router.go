package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"proctorboard/pkg/interfaces"
	"proctorboard/pkg/types"
)

// Router validates, persists, and redistributes inbound client events.
// Heartbeats update session liveness; violations are appended to the
// session record and then fanned out to every connection on the exam.
//
// The channel has no acknowledgement protocol: malformed frames, events
// for students with no active session, and persistence failures are all
// dropped without closing the connection.
type Router struct {
	registry *Registry
	store    interfaces.SessionStore
}

// NewRouter creates an event router.
func NewRouter(registry *Registry, store interfaces.SessionStore) *Router {
	return &Router{
		registry: registry,
		store:    store,
	}
}

// HandleEvent processes one inbound frame from a connection. It never
// returns an error to the sender and never panics on bad input; parsing
// failures are isolated per-message so one bad frame cannot take down the
// dispatch loop.
func (r *Router) HandleEvent(ctx context.Context, examID string, data []byte) {
	var event types.Event
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("Dropped malformed frame on exam %s: %v", examID, err)
		return
	}

	if err := event.Validate(); err != nil {
		log.Printf("Dropped invalid %q frame on exam %s: %v", event.Type, examID, err)
		return
	}

	switch event.Type {
	case types.EventTypeHeartbeat:
		r.handleHeartbeat(ctx, examID, &event)
	case types.EventTypeViolation:
		r.handleViolation(ctx, examID, &event)
	}
}

// handleHeartbeat refreshes the session's last-activity timestamp. The
// timestamp is server-assigned; the client-supplied one is ignored for the
// persisted record. A heartbeat for a student with no active session is
// expected after submission and dropped silently.
func (r *Router) handleHeartbeat(ctx context.Context, examID string, event *types.Event) {
	session, err := r.store.GetActiveSession(ctx, examID, event.StudentID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return
		}
		log.Printf("Heartbeat lookup failed for exam %s student %s: %v", examID, event.StudentID, err)
		return
	}

	if err := r.store.UpdateSessionActivity(ctx, session.ID); err != nil {
		log.Printf("Failed to update activity for session %s: %v", session.ID, err)
	}
}

// handleViolation appends the violation to the session record and, only
// after the write completes, broadcasts it to every connection on the exam,
// sender included. Broadcast is exam-scoped, not recipient-scoped.
// On persistence failure the event is lost and nothing is broadcast.
func (r *Router) handleViolation(ctx context.Context, examID string, event *types.Event) {
	session, err := r.store.GetActiveSession(ctx, examID, event.StudentID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return
		}
		log.Printf("Violation lookup failed for exam %s student %s: %v", examID, event.StudentID, err)
		return
	}

	now := time.Now().UTC()
	record := fmt.Sprintf("%s at %s", event.Violation, now.Format(time.RFC3339))

	if err := r.store.AddViolation(ctx, session.ID, record); err != nil {
		log.Printf("Failed to persist violation for session %s: %v", session.ID, err)
		return
	}

	r.registry.Broadcast(examID, types.NewViolationBroadcast(event.StudentID, event.Violation, now))
}
