package attempt

import "errors"

var (
	// ErrNotFound covers both a missing attempt and an attempt owned by
	// someone else, so callers cannot probe for other users' attempt ids.
	ErrNotFound = errors.New("attempt not found")

	// ErrNotActive is returned when the conditional completion update hits
	// zero rows. It deliberately does not distinguish "already completed",
	// "wrong owner", and "no such attempt".
	ErrNotActive = errors.New("attempt not active")

	ErrInvalidInput = errors.New("invalid input")
)
