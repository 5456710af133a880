package session

import (
	"errors"
	"fmt"
)

// ErrSessionUnavailable is returned by Send when no CONNECTED handle
// exists, or when the handle was superseded while the send was in
// flight.
var ErrSessionUnavailable = errors.New("session not connected")

// SendError wraps a failure reported by the capability during a send.
type SendError struct {
	Cause error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Cause)
}

func (e *SendError) Unwrap() error { return e.Cause }
