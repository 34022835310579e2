package data

import "time"

// Record is one immutable acquisition sample.
//
// Timestamp is assigned at capture time by the producing device and
// carries Go's monotonic clock reading, so intervals between records
// survive wall-clock adjustments. Seq is strictly increasing per device;
// a gap in delivered sequence numbers means records were dropped under
// the drop_oldest overflow policy.
type Record struct {
	DeviceID   string    `json:"device_id"`
	DeviceType string    `json:"device_type"`
	Seq        uint64    `json:"seq"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload"`
}

// RecordSink accepts records from a producing device.
// *Channel is the canonical implementation.
type RecordSink interface {
	Push(rec Record)
}
