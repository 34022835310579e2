// Package session sequences one experimental run end to end.
//
// The Procedure is the state machine at the top of the system: it
// builds the rig, wires acquisition devices into the data manager,
// starts everything, holds the run phase open for the configured
// duration (or until a stop request or device fault), and then tears
// down unconditionally. Faults never propagate past Run; they are
// recorded and decide only whether the terminal state is Done or
// Failed.
//
// The Repository archives each finished run in SQLite: the run row,
// per-device delivery stats and any experimenter notes.
package session
