package services

import (
	"errors"
	"fmt"
)

// ErrInvalidStateTransition rejects any lifecycle move other than
// draft|paused -> active, active -> paused, active -> completed.
var ErrInvalidStateTransition = errors.New("invalid experiment state transition")

// ValidationError covers config problems caught before anything is persisted.
// Fully recoverable: fix the config and resubmit.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid experiment config: %s: %s", e.Field, e.Message)
}
