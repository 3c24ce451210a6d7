package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCorruptClaim is returned when a stored claim fails validation.
	// It indicates an invariant violation, not a transient failure.
	ErrCorruptClaim = errors.New("corrupt claim")
)
