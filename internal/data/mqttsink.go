package data

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/labrig/internal/infrastructure/mqtt"
)

// StreamPublisher is the slice of the MQTT client the sink needs.
type StreamPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSink streams records to labrig/device/{id}/data as JSON.
//
// The stream is best-effort: publish failures are returned to the
// manager, logged there, and never stall routing. Records are sent at
// QoS 0 and not retained.
type MQTTSink struct {
	publisher StreamPublisher
	topics    mqtt.Topics
}

// NewMQTTSink wraps an MQTT publisher as a consumer.
func NewMQTTSink(publisher StreamPublisher) *MQTTSink {
	return &MQTTSink{publisher: publisher}
}

// Name identifies this consumer in logs.
func (s *MQTTSink) Name() string {
	return "mqtt-stream"
}

// Consume publishes one record.
func (s *MQTTSink) Consume(rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling record: %w", err)
	}
	return s.publisher.Publish(s.topics.DeviceData(rec.DeviceID), payload, 0, false)
}

// Close is a no-op; the MQTT client's lifecycle is owned elsewhere.
func (s *MQTTSink) Close() error {
	return nil
}
