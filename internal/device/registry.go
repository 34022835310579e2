package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/labrig/internal/infrastructure/config"
)

// Factory constructs a device from its config entry.
// The factory validates Params and returns a device in StateCreated;
// it must not touch hardware (that happens in Initialize).
type Factory func(cfg config.DeviceConfig, logger Logger) (Device, error)

// Registry maps device type names to factories.
//
// Drivers register themselves at wiring time; only the hardware manager
// consults the registry afterwards. All methods are thread-safe.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory for a type name.
// Returns ErrDuplicateRegistration if the type is already taken.
func (r *Registry) Register(typeName string, factory Factory) error {
	if typeName == "" {
		return fmt.Errorf("%w: empty type name", ErrInvalidDeviceType)
	}
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %q", ErrInvalidDeviceType, typeName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[typeName]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, typeName)
	}
	r.factories[typeName] = factory
	return nil
}

// RegisterForce adds or replaces a factory for a type name.
// Intended for tests that substitute simulated drivers.
func (r *Registry) RegisterForce(typeName string, factory Factory) {
	r.mu.Lock()
	r.factories[typeName] = factory
	r.mu.Unlock()
}

// Create builds a device from its config entry.
// Returns ErrUnknownDeviceType if no factory matches cfg.Type.
func (r *Registry) Create(cfg config.DeviceConfig, logger Logger) (Device, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDeviceType, cfg.Type)
	}
	if logger == nil {
		logger = noopLogger{}
	}

	dev, err := factory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating device %q (type %s): %w", cfg.ID, cfg.Type, err)
	}
	return dev, nil
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
