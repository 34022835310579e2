package data

import "errors"

// Domain-specific errors for the data layer.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrEmptyDeviceID is returned when opening a channel without a device ID.
	ErrEmptyDeviceID = errors.New("data: device ID cannot be empty")

	// ErrChannelExists is returned when a device already has an open channel.
	ErrChannelExists = errors.New("data: channel already open for device")

	// ErrAlreadyRunning is returned when starting a manager twice.
	ErrAlreadyRunning = errors.New("data: manager already running")

	// ErrNotRunning is returned when stopping a manager that never started.
	ErrNotRunning = errors.New("data: manager not running")
)
