package data

import (
	"context"
	"sync"
)

// Producer identifies a device feeding a channel. The data layer needs
// nothing else from the device contract.
type Producer interface {
	ID() string
	Type() string
}

// Consumer receives routed records.
//
// Consume is called from drain goroutines, one per device channel, so a
// consumer shared across devices must be safe for concurrent use. A
// returned error is logged and the record is still offered to the
// remaining consumers; one misbehaving consumer never starves another.
type Consumer interface {
	Name() string
	Consume(rec Record) error
	Close() error
}

// Filter decides whether a consumer sees a record.
type Filter func(rec Record) bool

// FilterAll matches every record.
func FilterAll(Record) bool { return true }

// FilterDevice matches records from one device.
func FilterDevice(deviceID string) Filter {
	return func(rec Record) bool { return rec.DeviceID == deviceID }
}

// FilterType matches records from devices of one type.
func FilterType(deviceType string) Filter {
	return func(rec Record) bool { return rec.DeviceType == deviceType }
}

// Logger is the minimal logging interface the manager needs.
// Satisfied by logging.Logger; defaults to a no-op.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceStats is a point-in-time delivery snapshot for one device.
type DeviceStats struct {
	DeviceID   string `json:"device_id"`
	DeviceType string `json:"device_type"`
	Delivered  uint64 `json:"delivered"`
	Dropped    uint64 `json:"dropped"`
	LastSeq    uint64 `json:"last_seq"`
	Gaps       uint64 `json:"gaps"` // missing sequence numbers observed
}

type consumerEntry struct {
	consumer Consumer
	filter   Filter
}

type deviceEntry struct {
	producer Producer
	channel  *Channel
	stats    DeviceStats
}

// Manager routes records from device channels to registered consumers.
//
// One drain goroutine runs per device channel, preserving per-device
// FIFO order. Consumers are invoked in registration order; consumer
// errors are isolated and logged. The manager also maintains a
// latest-value cache and per-device delivery statistics.
type Manager struct {
	logger Logger

	mu        sync.RWMutex
	devices   map[string]*deviceEntry
	order     []string
	consumers []consumerEntry

	latest       map[string]Record // by device ID
	latestByType map[string]Record // by device type

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a manager with no devices or consumers registered.
// Pass nil for logger to disable logging.
func NewManager(logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		logger:       logger,
		devices:      make(map[string]*deviceEntry),
		latest:       make(map[string]Record),
		latestByType: make(map[string]Record),
	}
}

// RegisterDevice attaches a producing device and its channel.
//
// Safe while running: a device registered mid-run gets its drain
// goroutine immediately and its records flow from the next push.
func (m *Manager) RegisterDevice(p Producer, ch *Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[p.ID()]; exists {
		return
	}

	entry := &deviceEntry{
		producer: p,
		channel:  ch,
		stats: DeviceStats{
			DeviceID:   p.ID(),
			DeviceType: p.Type(),
		},
	}
	m.devices[p.ID()] = entry
	m.order = append(m.order, p.ID())

	if m.running {
		m.wg.Add(1)
		go m.drain(m.ctx, entry)
	}
}

// RegisterConsumer attaches a consumer with an optional filter.
// Pass nil to receive every record. Safe while running.
func (m *Manager) RegisterConsumer(c Consumer, f Filter) {
	if f == nil {
		f = FilterAll
	}
	m.mu.Lock()
	m.consumers = append(m.consumers, consumerEntry{consumer: c, filter: f})
	m.mu.Unlock()
}

// Start launches one drain goroutine per registered device channel.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	for _, id := range m.order {
		entry := m.devices[id]
		m.wg.Add(1)
		go m.drain(m.ctx, entry)
	}

	m.logger.Info("data manager started", "devices", len(m.order))
	return nil
}

// Stop halts routing, flushes buffered records to consumers, and closes
// each consumer exactly once.
//
// Devices must already be stopped: records pushed after Stop begins may
// not be delivered.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	m.mu.RLock()
	consumers := make([]consumerEntry, len(m.consumers))
	copy(consumers, m.consumers)
	m.mu.RUnlock()

	for _, entry := range consumers {
		if err := entry.consumer.Close(); err != nil {
			m.logger.Warn("consumer close failed",
				"consumer", entry.consumer.Name(),
				"error", err,
			)
		}
	}

	m.logger.Info("data manager stopped")
	return nil
}

// drain is the per-channel routing loop. On shutdown it empties whatever
// is still buffered before exiting, so stopped devices do not lose their
// tail of records.
func (m *Manager) drain(ctx context.Context, entry *deviceEntry) {
	defer m.wg.Done()

	for {
		rec, err := entry.channel.Pop(ctx)
		if err != nil {
			// Shutdown: flush the remainder without blocking.
			for {
				rec, ok := entry.channel.TryPop()
				if !ok {
					return
				}
				m.dispatch(entry, rec)
			}
		}
		m.dispatch(entry, rec)
	}
}

// dispatch updates stats and caches, then fans the record out to every
// matching consumer in registration order.
func (m *Manager) dispatch(entry *deviceEntry, rec Record) {
	m.mu.Lock()
	s := &entry.stats
	s.Delivered++
	if s.LastSeq > 0 && rec.Seq > s.LastSeq+1 {
		s.Gaps += rec.Seq - s.LastSeq - 1
	}
	if rec.Seq > s.LastSeq {
		s.LastSeq = rec.Seq
	}
	m.latest[rec.DeviceID] = rec
	m.latestByType[rec.DeviceType] = rec
	consumers := make([]consumerEntry, len(m.consumers))
	copy(consumers, m.consumers)
	m.mu.Unlock()

	for _, c := range consumers {
		if !c.filter(rec) {
			continue
		}
		if err := c.consumer.Consume(rec); err != nil {
			m.logger.Warn("consumer error",
				"consumer", c.consumer.Name(),
				"device_id", rec.DeviceID,
				"seq", rec.Seq,
				"error", err,
			)
		}
	}
}

// Latest returns the most recent record routed for a device.
func (m *Manager) Latest(deviceID string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.latest[deviceID]
	return rec, ok
}

// LatestByType returns the most recent record routed for a device type.
func (m *Manager) LatestByType(deviceType string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.latestByType[deviceType]
	return rec, ok
}

// Stats returns a delivery snapshot per device, in registration order.
// Dropped counts come live from each channel.
func (m *Manager) Stats() []DeviceStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]DeviceStats, 0, len(m.order))
	for _, id := range m.order {
		entry := m.devices[id]
		s := entry.stats
		s.Dropped = entry.channel.Dropped()
		out = append(out, s)
	}
	return out
}
