package interfaces

import "errors"

// Common store errors used across components.
var (
	ErrSessionNotFound = errors.New("exam session not found")
)
