package data

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// OverflowPolicy selects what happens when a device's channel is full.
type OverflowPolicy int

const (
	// OverflowDropOldest evicts the oldest buffered record to make room.
	// Favours liveness: the producer never blocks, consumers see the
	// freshest data, and the drop is counted.
	OverflowDropOldest OverflowPolicy = iota

	// OverflowBlock makes the producer wait for free space.
	// Favours completeness at the cost of back-pressure on the device.
	OverflowBlock
)

// String returns the config spelling of the policy.
func (p OverflowPolicy) String() string {
	if p == OverflowBlock {
		return "block"
	}
	return "drop_oldest"
}

// PolicyFromString parses the config spelling of an overflow policy.
// Empty or unknown values fall back to drop_oldest.
func PolicyFromString(s string) OverflowPolicy {
	if s == "block" {
		return OverflowBlock
	}
	return OverflowDropOldest
}

// Channel is the buffered conduit between one device and the drain loop.
//
// FIFO order is guaranteed within a channel; nothing is guaranteed across
// channels. Push never returns an error: overflow either blocks or drops,
// and drops are observable through Dropped().
type Channel struct {
	deviceID string
	policy   OverflowPolicy
	ch       chan Record

	// pushMu serializes drop-oldest eviction so two producers cannot
	// both evict for the same slot. Each device owns one goroutine, so
	// in practice this is uncontended.
	pushMu  sync.Mutex
	dropped atomic.Uint64
}

// DeviceID returns the owning device's ID.
func (c *Channel) DeviceID() string {
	return c.deviceID
}

// Policy returns the channel's overflow policy.
func (c *Channel) Policy() OverflowPolicy {
	return c.policy
}

// Push enqueues one record.
//
// Under OverflowBlock a full channel makes Push wait. Under
// OverflowDropOldest the oldest buffered record is evicted and counted,
// and Push returns promptly.
func (c *Channel) Push(rec Record) {
	if c.policy == OverflowBlock {
		c.ch <- rec
		return
	}

	c.pushMu.Lock()
	defer c.pushMu.Unlock()

	for {
		select {
		case c.ch <- rec:
			return
		default:
		}
		// Full: evict one and retry. The drain loop may have emptied a
		// slot in between, in which case the eviction select misses.
		select {
		case <-c.ch:
			c.dropped.Add(1)
		default:
		}
	}
}

// Pop removes the oldest buffered record, waiting until one is available
// or the context ends.
func (c *Channel) Pop(ctx context.Context) (Record, error) {
	select {
	case rec := <-c.ch:
		return rec, nil
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
}

// TryPop removes the oldest buffered record without waiting.
func (c *Channel) TryPop() (Record, bool) {
	select {
	case rec := <-c.ch:
		return rec, true
	default:
		return Record{}, false
	}
}

// Len returns the number of currently buffered records.
func (c *Channel) Len() int {
	return len(c.ch)
}

// Cap returns the channel capacity.
func (c *Channel) Cap() int {
	return cap(c.ch)
}

// Dropped returns how many records this channel has evicted.
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}

// Queue is the registry of per-device channels.
//
// Opening a channel is safe at any time, including mid-run; the data
// manager picks the new channel up when the device is registered.
type Queue struct {
	mu              sync.RWMutex
	channels        map[string]*Channel
	order           []string // registration order, for deterministic iteration
	defaultCapacity int
}

// NewQueue creates a queue whose channels default to the given capacity.
func NewQueue(defaultCapacity int) *Queue {
	if defaultCapacity <= 0 {
		defaultCapacity = 256
	}
	return &Queue{
		channels:        make(map[string]*Channel),
		defaultCapacity: defaultCapacity,
	}
}

// Open creates the channel for a device.
//
// Parameters:
//   - deviceID: owning device, unique within the queue
//   - capacity: buffer size; zero uses the queue default
//   - policy: overflow behaviour for a full buffer
//
// Returns ErrChannelExists if the device already has a channel.
func (q *Queue) Open(deviceID string, capacity int, policy OverflowPolicy) (*Channel, error) {
	if deviceID == "" {
		return nil, ErrEmptyDeviceID
	}
	if capacity <= 0 {
		capacity = q.defaultCapacity
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.channels[deviceID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrChannelExists, deviceID)
	}

	ch := &Channel{
		deviceID: deviceID,
		policy:   policy,
		ch:       make(chan Record, capacity),
	}
	q.channels[deviceID] = ch
	q.order = append(q.order, deviceID)
	return ch, nil
}

// Channel returns the channel for a device, if one has been opened.
func (q *Queue) Channel(deviceID string) (*Channel, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	ch, ok := q.channels[deviceID]
	return ch, ok
}

// Channels returns all open channels in registration order.
func (q *Queue) Channels() []*Channel {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*Channel, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.channels[id])
	}
	return out
}
