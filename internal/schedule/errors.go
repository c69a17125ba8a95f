package schedule

import "errors"

// Domain errors for the schedule package.
var (
	// ErrScheduleNotFound is returned when a device has no stored schedule.
	ErrScheduleNotFound = errors.New("schedule: not found")

	// ErrInvalidEntry is returned when an entry fails validation.
	ErrInvalidEntry = errors.New("schedule: invalid entry")
)
