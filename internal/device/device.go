package device

import (
	"context"

	"github.com/nerrad567/labrig/internal/data"
)

// State is a device's lifecycle position.
//
// Valid transitions:
//
//	Created -> Initialized -> Running -> Stopped -> Closed
//
// Failed is reachable from any state except Closed and records the
// point of no return for this run; a failed device is only ever closed.
// Stopped devices may be closed without restarting.
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateRunning
	StateStopped
	StateClosed
	StateFailed
)

// String returns the lowercase state name used in logs, MQTT payloads
// and the archive.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a non-blocking snapshot of a device's condition.
//
// Err carries the fault that moved the device to StateFailed, or the
// most recent runtime fault observed by the device's own goroutine.
// The session's status poll watches Err to detect mid-run faults.
type Status struct {
	State  State  `json:"state"`
	Err    error  `json:"-"`
	Detail string `json:"detail,omitempty"`
}

// Device is the uniform lifecycle contract every instrument satisfies.
//
// Initialize, Start and Stop honour context cancellation; the hardware
// manager bounds each call with a per-operation timeout. Close must be
// idempotent and callable from any state, because teardown runs
// unconditionally. Status must never block: it reads cached state, not
// the instrument.
type Device interface {
	ID() string
	Type() string

	// Initialize acquires resources and verifies the instrument is
	// reachable. Must be called exactly once before Start.
	Initialize(ctx context.Context) error

	// Start begins the device's active phase. Acquisition devices spawn
	// their single producer goroutine here, never earlier.
	Start(ctx context.Context) error

	// Stop ends the active phase and waits for the producer goroutine
	// to exit. A no-op when Start never succeeded, so teardown can
	// sweep every device. The device may be closed afterwards but not
	// restarted.
	Stop(ctx context.Context) error

	// Close releases all resources. Idempotent, safe from any state.
	Close() error

	// Status reports the current lifecycle snapshot without blocking.
	Status() Status
}

// DataSource is the acquisition capability. Devices that produce a
// record stream implement it alongside Device.
type DataSource interface {
	// DataRate returns the nominal output rate in records per second.
	DataRate() float64

	// Attach connects the sink the device pushes records into.
	// Must be called before Start.
	Attach(sink data.RecordSink)

	// Latest returns the most recent record the device produced, if any.
	Latest() (data.Record, bool)
}

// Controllable is the control capability: named runtime parameters
// (output lines, gain, exposure) readable and writable mid-run.
type Controllable interface {
	SetParameter(name string, value any) error
	GetParameter(name string) (any, error)
}

// Logger defines the logging interface used by device implementations.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger returns a logger that discards everything.
func NoopLogger() Logger { return noopLogger{} }
