package hardware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/labrig/internal/device"
	"github.com/nerrad567/labrig/internal/infrastructure/config"
)

// Acquisition is a device that also produces a record stream.
type Acquisition interface {
	device.Device
	device.DataSource
}

// Control is a device that also exposes runtime parameters.
type Control interface {
	device.Device
	device.Controllable
}

// Timeouts bounds each lifecycle call the manager makes.
type Timeouts struct {
	Initialize time.Duration
	Start      time.Duration
	Stop       time.Duration
	Close      time.Duration
}

// Manager owns the rig: it builds every configured device through the
// registry and sequences their lifecycle as a group.
//
// Devices are built, initialized and started in declaration order and
// stopped in the same order (declaration order encodes dependencies,
// e.g. a triggering DAQ before the cameras it gates). The manager is
// the session's only path to the instruments.
type Manager struct {
	registry *device.Registry
	logger   device.Logger
	timeouts Timeouts

	devices []device.Device // declaration order
	byID    map[string]device.Device
	built   bool
}

// NewManager creates a manager over the given registry.
// Pass nil for logger to disable logging.
func NewManager(registry *device.Registry, timeouts Timeouts, logger device.Logger) *Manager {
	if logger == nil {
		logger = device.NoopLogger()
	}
	return &Manager{
		registry: registry,
		logger:   logger,
		timeouts: timeouts,
		byID:     make(map[string]device.Device),
	}
}

// Build constructs and initializes every configured device.
//
// Construction is all-or-nothing: if device k fails to construct or
// initialize, devices 1..k-1 (already initialized) are closed exactly
// once, in reverse order, and the failure is returned. A per-device
// timeout bounds each Initialize; breaching it maps to
// device.ErrInitializeTimeout.
func (m *Manager) Build(ctx context.Context, configs []config.DeviceConfig) error {
	if m.built {
		return ErrAlreadyBuilt
	}

	for _, cfg := range configs {
		dev, err := m.registry.Create(cfg, m.logger)
		if err != nil {
			m.closeBuilt()
			return fmt.Errorf("%w: %s: %w", ErrBuildFailed, cfg.ID, err)
		}
		m.devices = append(m.devices, dev)
		m.byID[dev.ID()] = dev
	}

	for _, dev := range m.devices {
		if err := m.initializeOne(ctx, dev); err != nil {
			m.closeBuilt()
			return fmt.Errorf("%w: %s: %w", ErrBuildFailed, dev.ID(), err)
		}
		m.logger.Info("device initialised", "device_id", dev.ID(), "type", dev.Type())
	}

	m.built = true
	return nil
}

func (m *Manager) initializeOne(ctx context.Context, dev device.Device) error {
	initCtx, cancel := context.WithTimeout(ctx, m.timeouts.Initialize)
	defer cancel()

	err := dev.Initialize(initCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: after %v", device.ErrInitializeTimeout, m.timeouts.Initialize)
	}
	return err
}

// closeBuilt closes everything constructed so far, in reverse order.
// Close is idempotent, so partially initialized devices are safe.
func (m *Manager) closeBuilt() {
	for i := len(m.devices) - 1; i >= 0; i-- {
		dev := m.devices[i]
		if err := dev.Close(); err != nil {
			m.logger.Warn("close during failed build", "device_id", dev.ID(), "error", err)
		}
	}
	m.devices = nil
	m.byID = make(map[string]device.Device)
}

// Device returns one device by ID.
func (m *Manager) Device(id string) (device.Device, bool) {
	dev, ok := m.byID[id]
	return dev, ok
}

// All returns every device in declaration order.
func (m *Manager) All() []device.Device {
	out := make([]device.Device, len(m.devices))
	copy(out, m.devices)
	return out
}

// Acquisition returns the devices that produce a record stream,
// in declaration order.
func (m *Manager) Acquisition() []Acquisition {
	var out []Acquisition
	for _, dev := range m.devices {
		if a, ok := dev.(Acquisition); ok {
			out = append(out, a)
		}
	}
	return out
}

// Control returns the devices with runtime parameters, in declaration order.
func (m *Manager) Control() []Control {
	var out []Control
	for _, dev := range m.devices {
		if c, ok := dev.(Control); ok {
			out = append(out, c)
		}
	}
	return out
}

// StartAll starts every device in declaration order.
//
// The first failure aborts the sweep and is returned; already-started
// devices stay running, and the caller proceeds to teardown. A timeout
// on Start marks that device failed.
func (m *Manager) StartAll(ctx context.Context) error {
	for _, dev := range m.devices {
		startCtx, cancel := context.WithTimeout(ctx, m.timeouts.Start)
		err := dev.Start(startCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrStartFailed, dev.ID(), err)
		}
		m.logger.Info("device started", "device_id", dev.ID())
	}
	return nil
}

// StopAll stops every running device in declaration order.
//
// Unlike StartAll this never aborts early: each device gets its stop
// attempt, faults are collected, and the joined error is returned so
// teardown can continue regardless.
func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	for _, dev := range m.devices {
		if dev.Status().State != device.StateRunning {
			continue
		}
		stopCtx, cancel := context.WithTimeout(ctx, m.timeouts.Stop)
		err := dev.Stop(stopCtx)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", dev.ID(), err))
			m.logger.Error("device stop failed", "device_id", dev.ID(), "error", err)
			continue
		}
		m.logger.Info("device stopped", "device_id", dev.ID())
	}
	return errors.Join(errs...)
}

// CloseAll closes every device, bounding each Close with the close
// timeout. A hung Close is logged and abandoned; its goroutine is
// leaked deliberately rather than blocking the rest of teardown.
func (m *Manager) CloseAll() error {
	var errs []error
	for _, dev := range m.devices {
		if err := m.closeOne(dev); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", dev.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) closeOne(dev device.Device) error {
	done := make(chan error, 1)
	go func() {
		done <- dev.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			m.logger.Error("device close failed", "device_id", dev.ID(), "error", err)
			return err
		}
		return nil
	case <-time.After(m.timeouts.Close):
		m.logger.Error("device close timed out, abandoning", "device_id", dev.ID(), "timeout", m.timeouts.Close)
		return fmt.Errorf("%w: %s", ErrCloseTimeout, dev.ID())
	}
}
