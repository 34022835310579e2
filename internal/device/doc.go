// Package device defines the lifecycle contract every instrument
// satisfies, the optional capability interfaces, and the type registry.
//
// # Lifecycle
//
// Devices move Created -> Initialized -> Running -> Stopped -> Closed,
// with Failed reachable from any non-Closed state. The Lifecycle helper
// enforces the transitions behind a mutex so drivers only implement the
// hardware side. Close is idempotent from any state; Status never
// blocks.
//
// # Capabilities
//
// Beyond the base Device contract a driver may implement DataSource
// (it produces a record stream) and/or Controllable (it exposes named
// runtime parameters). Callers discover capabilities by type assertion;
// the hardware manager pre-sorts devices into views.
//
// # Registry
//
// Drivers register a Factory per type name. The hardware manager is the
// only consumer: it creates devices from config entries in declaration
// order. RegisterForce exists so tests can substitute simulated drivers.
package device
