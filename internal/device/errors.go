package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a MAC that is already registered.
	ErrDeviceExists = errors.New("device: already registered")

	// ErrUnauthorized is returned when an API key does not match any device.
	ErrUnauthorized = errors.New("device: unauthorized")

	// ErrDeviceBlocked is returned when a blocked device presents a valid key.
	ErrDeviceBlocked = errors.New("device: blocked")

	// ErrInvalidState is returned when a transition target is not one of
	// the four administrative states.
	ErrInvalidState = errors.New("device: invalid admin state")

	// ErrInvalidMAC is returned when a MAC address fails validation.
	ErrInvalidMAC = errors.New("device: invalid mac address")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")
)
