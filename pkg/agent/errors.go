package agent

import "errors"

// Agent errors.
var (
	ErrNotConnected = errors.New("monitoring channel is not connected")
)
