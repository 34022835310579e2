// Package hardware assembles the configured instruments into one rig.
//
// The manager builds devices from config in declaration order through
// the device registry, initializes each under a timeout, and exposes
// group lifecycle sweeps (StartAll, StopAll, CloseAll) plus typed views
// over the acquisition and control capabilities.
//
// Build is transactional: a failure anywhere closes the devices that
// made it up, so the session never sees a half-alive rig. Teardown
// sweeps are the opposite: they always visit every device, collect
// faults, and return them joined rather than aborting.
package hardware
