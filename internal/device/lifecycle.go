package device

import (
	"fmt"
	"sync"
)

// Lifecycle is the mutex-guarded state word drivers embed to get the
// contract's transition rules without re-implementing them.
//
// The zero value starts in StateCreated. All methods are safe for
// concurrent use, and the read path never blocks on device I/O.
type Lifecycle struct {
	mu     sync.RWMutex
	state  State
	err    error
	detail string
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Status returns the current snapshot.
func (l *Lifecycle) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Status{State: l.state, Err: l.err, Detail: l.detail}
}

// ToInitialized moves Created -> Initialized.
// A second call returns ErrAlreadyInitialized.
func (l *Lifecycle) ToInitialized() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateCreated:
		l.state = StateInitialized
		return nil
	case StateInitialized, StateRunning, StateStopped:
		return ErrAlreadyInitialized
	case StateClosed:
		return ErrClosed
	default:
		return fmt.Errorf("%w: initialize from %s", ErrInvalidTransition, l.state)
	}
}

// ToRunning moves Initialized -> Running.
func (l *Lifecycle) ToRunning() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateInitialized:
		l.state = StateRunning
		return nil
	case StateClosed:
		return ErrClosed
	default:
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, l.state)
	}
}

// ToStopped moves Running -> Stopped. Stopping a device whose start
// never happened (or never succeeded) is a no-op, so teardown can
// always sweep Stop without tracking which starts went through. The
// stopped result tells the driver whether a worker needs joining.
func (l *Lifecycle) ToStopped() (stopped bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateRunning:
		l.state = StateStopped
		return true, nil
	case StateCreated, StateInitialized, StateStopped:
		return false, nil
	case StateClosed:
		return false, ErrClosed
	default:
		return false, fmt.Errorf("%w: stop from %s", ErrInvalidTransition, l.state)
	}
}

// ToClosed moves any state to Closed. Idempotent: closing a closed
// device reports true the first time and false afterwards, so drivers
// can skip resource release on repeat calls.
func (l *Lifecycle) ToClosed() (first bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return false
	}
	l.state = StateClosed
	return true
}

// Fail moves any non-Closed state to Failed and records the fault.
// Failing a closed device is a no-op; the first fault wins.
func (l *Lifecycle) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return
	}
	if l.state != StateFailed {
		l.state = StateFailed
		l.err = err
	}
}

// SetRuntimeErr records a fault without changing state, for devices
// that keep producing through transient errors. The session's status
// poll still sees it.
func (l *Lifecycle) SetRuntimeErr(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

// SetDetail records the human-readable line Status carries (port,
// rate, line count). Drivers set it once hardware is known.
func (l *Lifecycle) SetDetail(detail string) {
	l.mu.Lock()
	l.detail = detail
	l.mu.Unlock()
}
