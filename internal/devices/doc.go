// Package devices holds the built-in instrument drivers.
//
// Each driver embeds device.Lifecycle for its state machine and owns at
// most one goroutine, spawned in Start and joined in Stop. Acquiring
// drivers (encoder, camera) push records through an attached sink; the
// daq board is control-only.
//
// All drivers accept a development_mode param that substitutes a
// synthetic signal or skips the hardware probe, so a full session can
// run on a machine with nothing plugged in. A fail_after param injects
// a runtime fault after N records for teardown testing.
package devices
