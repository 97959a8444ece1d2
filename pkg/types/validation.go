package types

import "regexp"

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks that an exam or student identifier meets format
// requirements. IDs are opaque to this service but bounded to keep them
// safe for query parameters and database keys.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 50 {
		return false
	}
	return idRegex.MatchString(id)
}

// IsValidEventType checks if the event type is one of the inbound types
// accepted by the event router.
func IsValidEventType(eventType string) bool {
	switch eventType {
	case EventTypeHeartbeat, EventTypeViolation:
		return true
	default:
		return false
	}
}
