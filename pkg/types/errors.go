package types

import "errors"

// Validation errors shared across components.
var (
	ErrInvalidID        = errors.New("identifier must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMissingStudentID = errors.New("event missing studentId")
	ErrMissingViolation = errors.New("violation event missing violation description")
)
