package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteRecord writes one acquisition record to InfluxDB.
//
// The write is non-blocking; points are batched and sent asynchronously.
// The record's capture timestamp is preserved, not the write time.
//
// Parameters:
//   - deviceID: Device the record came from (e.g. "encoder-wheel")
//   - deviceType: Registered device type (e.g. "encoder")
//   - seq: Per-device sequence number
//   - fields: Numeric payload fields (e.g. {"speed_cms": 12.4})
//   - timestamp: Capture time of the record
func (c *Client) WriteRecord(deviceID, deviceType string, seq uint64, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["seq"] = int64(seq) // #nosec G115 -- sequence counts stay far below int64 range

	point := write.NewPoint(
		"records",
		map[string]string{
			"device_id":   deviceID,
			"device_type": deviceType,
		},
		fields,
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteSessionEvent writes a session lifecycle event.
//
// Parameters:
//   - sessionID: Run UUID
//   - state: Session state name (e.g. "running", "done")
func (c *Client) WriteSessionEvent(sessionID, state string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"session_events",
		map[string]string{
			"session_id": sessionID,
		},
		map[string]interface{}{
			"state": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//   - timestamp: The exact time for this data point
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
