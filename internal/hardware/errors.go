package hardware

import "errors"

// Domain errors for the hardware manager.
var (
	// ErrAlreadyBuilt is returned when Build is called twice.
	ErrAlreadyBuilt = errors.New("hardware: already built")

	// ErrBuildFailed is returned when construction or initialization of
	// any device fails; earlier devices have been closed.
	ErrBuildFailed = errors.New("hardware: build failed")

	// ErrStartFailed is returned when a device refuses or times out its start.
	ErrStartFailed = errors.New("hardware: start failed")

	// ErrCloseTimeout is returned when a device's Close exceeded its bound
	// and was abandoned.
	ErrCloseTimeout = errors.New("hardware: close timed out")
)
