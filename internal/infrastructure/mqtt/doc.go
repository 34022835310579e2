// Package mqtt provides the broker client for labrig's external surface.
//
// The orchestrator publishes session state transitions, device lifecycle
// states, and (optionally) the record stream; it subscribes to the
// session stop topic so a remote system can end a run.
//
// # Topic hierarchy
//
//	labrig/system/status                  orchestrator online/offline (retained, LWT)
//	labrig/session/{id}/state             session state transitions (retained)
//	labrig/session/{id}/stop              inbound stop request
//	labrig/device/{id}/state              device lifecycle state (retained)
//	labrig/device/{id}/data               record stream (not retained)
//
// # Reliability
//
//   - Automatic reconnection with exponential backoff
//   - Subscriptions restored after reconnect
//   - Last Will and Testament distinguishes crashes from graceful exits
//
// The MQTT surface is optional; with mqtt.enabled false the session runs
// entirely standalone.
package mqtt
