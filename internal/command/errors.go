package command

import "errors"

// Domain errors for the command package.
var (
	// ErrInvalidType is returned when a command type is empty.
	ErrInvalidType = errors.New("command: type is required")

	// ErrDeviceRequired is returned when a device ID is missing.
	ErrDeviceRequired = errors.New("command: device id is required")
)
