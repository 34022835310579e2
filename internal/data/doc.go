// Package data is the collection layer: records, per-device channels,
// and the routing manager.
//
// # Model
//
// Each acquiring device pushes Records into its own Channel. The Manager
// runs one drain goroutine per channel and fans every record out to the
// registered Consumers in registration order. A slow or failing consumer
// is logged and skipped for that record; it never blocks the others.
//
// Ordering is guaranteed per device only. Consumers needing a global
// order must sort by Timestamp, which carries the monotonic clock
// reading taken at capture.
//
// # Overflow
//
// A full channel either blocks the producer (OverflowBlock) or evicts
// the oldest record (OverflowDropOldest, the default). Drops are never
// errors; they are counted per channel and surface as sequence gaps in
// DeviceStats.
//
// # Consumers
//
// Provided consumers: CSVLogger (per-session record log), InfluxSink
// (batched time-series persistence), MQTTSink (live broker stream). The
// API websocket hub registers itself as a fourth.
package data
