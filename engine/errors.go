package engine

import (
	"errors"
	"fmt"
)

// ErrSequenceInactive is returned by enrollment when the sequence exists
// but is not published.
var ErrSequenceInactive = errors.New("sequence is not active")

// GenerationError wraps a message-generator failure, including timeouts.
// The step is not advanced; the record is rescheduled with backoff.
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("message generation failed: %v", e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// SendError wraps a send-channel failure. Handled like GenerationError.
type SendError struct {
	Cause error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Cause)
}

func (e *SendError) Unwrap() error { return e.Cause }
