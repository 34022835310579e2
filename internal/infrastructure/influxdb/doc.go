// Package influxdb persists acquisition records to an InfluxDB v2 server.
//
// Records are written through the non-blocking batched write API, tagged
// by device_id and device_type, keeping the original capture timestamps.
// The data manager drives this through the influx record sink; the
// backend is optional and off by default.
package influxdb
