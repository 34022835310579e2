package device

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/labrig/internal/infrastructure/config"
)

// fakeDevice is a minimal Device for registry tests.
type fakeDevice struct {
	Lifecycle
	id  string
	typ string
}

func (d *fakeDevice) ID() string                       { return d.id }
func (d *fakeDevice) Type() string                     { return d.typ }
func (d *fakeDevice) Initialize(context.Context) error { return d.ToInitialized() }
func (d *fakeDevice) Start(context.Context) error      { return d.ToRunning() }
func (d *fakeDevice) Stop(context.Context) error       { _, err := d.ToStopped(); return err }
func (d *fakeDevice) Close() error                     { d.ToClosed(); return nil }

func fakeFactory(cfg config.DeviceConfig, _ Logger) (Device, error) {
	return &fakeDevice{id: cfg.ID, typ: cfg.Type}, nil
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("encoder", fakeFactory); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	dev, err := r.Create(config.DeviceConfig{Type: "encoder", ID: "wheel"}, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if dev.ID() != "wheel" || dev.Type() != "encoder" {
		t.Errorf("created device = %s/%s, want wheel/encoder", dev.ID(), dev.Type())
	}
	if got := dev.Status().State; got != StateCreated {
		t.Errorf("new device state = %v, want created", got)
	}
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("encoder", fakeFactory); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("encoder", fakeFactory); !errors.Is(err, ErrDuplicateRegistration) {
		t.Errorf("second Register() = %v, want ErrDuplicateRegistration", err)
	}

	// Force replacement is allowed.
	r.RegisterForce("encoder", func(cfg config.DeviceConfig, _ Logger) (Device, error) {
		return &fakeDevice{id: cfg.ID, typ: "replaced"}, nil
	})
	dev, err := r.Create(config.DeviceConfig{Type: "encoder", ID: "wheel"}, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if dev.Type() != "replaced" {
		t.Errorf("Type() = %q, want replaced factory to win", dev.Type())
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create(config.DeviceConfig{Type: "hologram", ID: "h1"}, nil)
	if !errors.Is(err, ErrUnknownDeviceType) {
		t.Errorf("Create() = %v, want ErrUnknownDeviceType", err)
	}
}

func TestRegistry_InvalidRegistrations(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("", fakeFactory); err == nil {
		t.Error("Register() with empty type should fail")
	}
	if err := r.Register("encoder", nil); err == nil {
		t.Error("Register() with nil factory should fail")
	}
}

func TestRegistry_Types(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"encoder", "camera", "daq"} {
		if err := r.Register(name, fakeFactory); err != nil {
			t.Fatalf("Register(%q) error = %v", name, err)
		}
	}

	types := r.Types()
	want := []string{"camera", "daq", "encoder"}
	if len(types) != len(want) {
		t.Fatalf("len(Types()) = %d, want %d", len(types), len(want))
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("Types()[%d] = %q, want %q", i, types[i], want[i])
		}
	}
}
