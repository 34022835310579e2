package session

import "errors"

// Domain errors for the session package.
var (
	// ErrAlreadyRan is returned when Run is called on a procedure that
	// has already executed; procedures are single-use.
	ErrAlreadyRan = errors.New("session: procedure already ran")

	// ErrRunFailed is returned by Run when the terminal state is Failed;
	// the first recorded fault is attached.
	ErrRunFailed = errors.New("session: run failed")

	// ErrRunNotFound is returned when no archived run matches an ID.
	ErrRunNotFound = errors.New("session: run not found")
)
