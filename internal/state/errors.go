package state

import (
	"errors"
	"fmt"
)

// Error codes for domain errors.
const (
	ErrCodeTransientNetwork = "transient_network"
	ErrCodePermissionDenied = "permission_denied"
	ErrCodeNotFound         = "not_found"
	ErrCodeMalformedState   = "malformed_state"
	ErrCodePinLimit         = "pin_limit"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrMalformedState = errors.New("malformed state")
	ErrPinLimit       = errors.New("pin limit reached")
)

// StateError wraps a code and human-readable message. Transient errors are
// soft failures: callers log them and leave local state untouched until the
// next triggering event retries.
type StateError struct {
	Code    string
	Message string
	Err     error
}

func (e *StateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable soft failure.
func Transient(msg string, err error) *StateError {
	return &StateError{Code: ErrCodeTransientNetwork, Message: msg, Err: err}
}

// IsTransient reports whether err is a retryable soft failure.
func IsTransient(err error) bool {
	var se *StateError
	return errors.As(err, &se) && se.Code == ErrCodeTransientNetwork
}
