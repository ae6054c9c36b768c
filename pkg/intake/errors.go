package intake

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedMessage is matched by deliveries that can never be enqueued.
	ErrMalformedMessage = errors.New("malformed task message")

	// ErrNotConnected is returned while no broker connection is open.
	ErrNotConnected = errors.New("intake not connected")
)

// MalformedMessageError wraps the decode failure of a delivery body.
type MalformedMessageError struct {
	Cause error
}

// Error implements the error interface.
func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed task message: %v", e.Cause)
}

// Is implements error matching for errors.Is().
func (e *MalformedMessageError) Is(target error) bool {
	return target == ErrMalformedMessage
}

// Unwrap returns the decode error.
func (e *MalformedMessageError) Unwrap() error {
	return e.Cause
}
