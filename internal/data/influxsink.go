package data

import "time"

// RecordWriter is the slice of the InfluxDB client the sink needs.
type RecordWriter interface {
	WriteRecord(deviceID, deviceType string, seq uint64, fields map[string]interface{}, timestamp time.Time)
	Flush()
}

// InfluxSink forwards records to the time-series backend.
//
// Writes are batched and asynchronous inside the client, so Consume
// never blocks the drain loop. Non-numeric payload values are skipped;
// a record with no numeric fields still lands with its sequence number.
type InfluxSink struct {
	writer RecordWriter
}

// NewInfluxSink wraps an InfluxDB client as a consumer.
func NewInfluxSink(writer RecordWriter) *InfluxSink {
	return &InfluxSink{writer: writer}
}

// Name identifies this consumer in logs.
func (s *InfluxSink) Name() string {
	return "influxdb-sink"
}

// Consume writes one record to the backend.
func (s *InfluxSink) Consume(rec Record) error {
	s.writer.WriteRecord(rec.DeviceID, rec.DeviceType, rec.Seq, numericFields(rec.Payload), rec.Timestamp)
	return nil
}

// Close flushes any batched points.
func (s *InfluxSink) Close() error {
	s.writer.Flush()
	return nil
}

// numericFields extracts the storable fields from a record payload.
func numericFields(payload any) map[string]interface{} {
	fields := make(map[string]interface{})

	m, ok := payload.(map[string]any)
	if !ok {
		switch v := payload.(type) {
		case float64:
			fields["value"] = v
		case int:
			fields["value"] = float64(v)
		}
		return fields
	}

	for k, v := range m {
		switch val := v.(type) {
		case float64:
			fields[k] = val
		case float32:
			fields[k] = float64(val)
		case int:
			fields[k] = float64(val)
		case int64:
			fields[k] = float64(val)
		case uint64:
			fields[k] = float64(val)
		case bool:
			fields[k] = val
		}
	}
	return fields
}
