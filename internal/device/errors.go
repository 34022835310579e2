package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrAlreadyInitialized) {
//	    // handle double-initialize
//	}
var (
	// ErrAlreadyInitialized is returned when Initialize is called twice.
	ErrAlreadyInitialized = errors.New("device: already initialized")

	// ErrInvalidTransition is returned for lifecycle calls out of order,
	// such as starting a device that was never initialized.
	ErrInvalidTransition = errors.New("device: invalid lifecycle transition")

	// ErrInitializeTimeout is returned when a device does not complete
	// Initialize within the configured bound.
	ErrInitializeTimeout = errors.New("device: initialize timed out")

	// ErrUnknownDeviceType is returned when no factory matches a config entry.
	ErrUnknownDeviceType = errors.New("device: unknown type")

	// ErrDuplicateRegistration is returned when a type name is registered twice.
	ErrDuplicateRegistration = errors.New("device: type already registered")

	// ErrInvalidDeviceType is returned for malformed registrations.
	ErrInvalidDeviceType = errors.New("device: invalid type")

	// ErrClosed is returned for operations on a closed device.
	ErrClosed = errors.New("device: closed")

	// ErrUnknownParameter is returned by Controllable devices for
	// parameter names they do not expose.
	ErrUnknownParameter = errors.New("device: unknown parameter")
)
