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

	// ErrDeviceExists is returned when creating a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidCapabilityType is returned when a capability type is not recognised.
	ErrInvalidCapabilityType = errors.New("device: invalid capability type")

	// ErrInvalidOnlineStatus is returned when an online status value is not recognised.
	ErrInvalidOnlineStatus = errors.New("device: invalid online status")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrPayloadMismatch is returned when a variant payload does not match
	// the device's capability type.
	ErrPayloadMismatch = errors.New("device: payload does not match capability type")

	// ErrCapabilityTypeImmutable is returned when an update attempts to
	// change a device's capability type.
	ErrCapabilityTypeImmutable = errors.New("device: capability type is immutable")
)
