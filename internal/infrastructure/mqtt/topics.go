package mqtt

import "fmt"

// Topic prefixes for the labrig MQTT hierarchy.
//
// Scheme: labrig/{category}/...
const (
	// TopicPrefix is the base for all labrig topics.
	TopicPrefix = "labrig"

	// TopicPrefixSession is the base for session lifecycle topics.
	TopicPrefixSession = "labrig/session"

	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "labrig/device"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "labrig/system"
)

// Topics provides builders for labrig MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("encoder-wheel")
//	// Returns: "labrig/device/encoder-wheel/state"
type Topics struct{}

// SessionState returns the topic for session state transitions.
//
// Example: labrig/session/run-7f3a/state
func (Topics) SessionState(sessionID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixSession, sessionID)
}

// SessionStop returns the topic that requests a stop of the named session.
// The orchestrator subscribes here; any payload triggers the stop.
//
// Example: labrig/session/run-7f3a/stop
func (Topics) SessionStop(sessionID string) string {
	return fmt.Sprintf("%s/%s/stop", TopicPrefixSession, sessionID)
}

// AllSessionStops returns a pattern matching stop requests for any session.
//
// Pattern: labrig/session/+/stop
func (Topics) AllSessionStops() string {
	return fmt.Sprintf("%s/+/stop", TopicPrefixSession)
}

// DeviceState returns the topic for a device's lifecycle state.
//
// Example: labrig/device/encoder-wheel/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixDevice, deviceID)
}

// DeviceData returns the topic carrying a device's record stream.
//
// Example: labrig/device/encoder-wheel/data
func (Topics) DeviceData(deviceID string) string {
	return fmt.Sprintf("%s/%s/data", TopicPrefixDevice, deviceID)
}

// AllDeviceData returns a pattern matching every device's record stream.
//
// Pattern: labrig/device/+/data
func (Topics) AllDeviceData() string {
	return fmt.Sprintf("%s/+/data", TopicPrefixDevice)
}

// SystemStatus returns the orchestrator online/offline status topic.
//
// Example: labrig/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllTopics returns a pattern matching all labrig topics.
// Use with caution, this receives ALL traffic.
//
// Pattern: labrig/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
