package devices

import (
	"fmt"

	"github.com/nerrad567/labrig/internal/device"
)

// RegisterAll adds every built-in driver to the registry.
// Called once during wiring, before the hardware manager builds.
func RegisterAll(reg *device.Registry) error {
	factories := map[string]device.Factory{
		TypeEncoder: NewEncoder,
		TypeCamera:  NewCamera,
		TypeDAQ:     NewDAQ,
	}

	for name, factory := range factories {
		if err := reg.Register(name, factory); err != nil {
			return fmt.Errorf("registering %s driver: %w", name, err)
		}
	}
	return nil
}
