package alarm

import "errors"

// Domain errors for the alarm package.
var (
	// ErrInvalidSeverity is returned when recording an event with an
	// unknown severity.
	ErrInvalidSeverity = errors.New("alarm: invalid severity")

	// ErrTypeRequired is returned when recording an event without a type.
	ErrTypeRequired = errors.New("alarm: event type required")
)
