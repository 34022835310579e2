// Package api serves read-only introspection over a running session.
//
// Live views poll the session snapshot, the device list and the
// latest-value cache over HTTP, or subscribe to the record stream over
// a WebSocket. Nothing here can change the rig; the one mutating
// endpoint requests an early session stop, which the procedure handles
// the same way as an elapsed run timer.
package api
