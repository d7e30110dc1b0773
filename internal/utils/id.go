package utils

import "github.com/google/uuid"

// NewID returns a unique identifier for message and session rows.
func NewID() string {
	return uuid.NewString()
}
