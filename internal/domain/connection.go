package domain

import "github.com/google/uuid"

// NewConnectionID returns a fresh transport-level connection identifier.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}
