package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable is returned when the store itself cannot be reached,
	// e.g. it was closed or the database connection is gone.
	ErrUnreachable = errors.New("history store unreachable")

	// ErrInvalidTurn is returned for turns that fail validation.
	ErrInvalidTurn = errors.New("invalid turn")
)

// Error is returned for read and write failures of the history store.
type Error struct {
	Op        string
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("history store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("history store %s (session %s): %v", e.Op, e.SessionID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsUnreachable reports whether err means the store could not be reached.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
