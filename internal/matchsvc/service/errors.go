package service

import (
	"errors"
	"fmt"

	"github.com/cinewave/match-services/internal/matchsvc/store"
)

// NotFoundError means the addressed game or participant does not exist.
// Surfaced to the initiating user as "game not found"; not retryable.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// StateConflictError means the operation is valid in general but not in the
// session's current state (join after start, start without all ready,
// undersized pool). The user must change something; no automatic retry.
type StateConflictError struct {
	Reason string
}

func (e *StateConflictError) Error() string {
	return e.Reason
}

func stateConflict(format string, args ...interface{}) error {
	return &StateConflictError{Reason: fmt.Sprintf(format, args...)}
}

// wrapNotFound converts the store sentinel into the domain error; anything
// else (network, permission) bubbles unchanged as a transient store error.
func wrapNotFound(err error, entity, key string) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Entity: entity, Key: key}
	}
	return err
}
