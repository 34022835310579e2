package data

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubProducer struct {
	id  string
	typ string
}

func (p stubProducer) ID() string   { return p.id }
func (p stubProducer) Type() string { return p.typ }

// collectingConsumer records everything it receives.
type collectingConsumer struct {
	mu      sync.Mutex
	name    string
	records []Record
	closed  int
}

func (c *collectingConsumer) Name() string { return c.name }

func (c *collectingConsumer) Consume(rec Record) error {
	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()
	return nil
}

func (c *collectingConsumer) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *collectingConsumer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func (c *collectingConsumer) all() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// failingConsumer always errors.
type failingConsumer struct{}

func (failingConsumer) Name() string         { return "failing" }
func (failingConsumer) Consume(Record) error { return errors.New("boom") }
func (failingConsumer) Close() error         { return nil }

func waitForCount(t *testing.T, c *collectingConsumer, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d records, got %d", want, c.count())
}

func newTestManager(t *testing.T, ids ...string) (*Manager, *Queue) {
	t.Helper()
	q := NewQueue(32)
	m := NewManager(nil)
	for _, id := range ids {
		ch, err := q.Open(id, 32, OverflowDropOldest)
		if err != nil {
			t.Fatalf("Open(%q) error = %v", id, err)
		}
		m.RegisterDevice(stubProducer{id: id, typ: "test"}, ch)
	}
	return m, q
}

func TestManager_RoutesPerDeviceInOrder(t *testing.T) {
	m, q := newTestManager(t, "encoder-wheel")
	sink := &collectingConsumer{name: "collector"}
	m.RegisterConsumer(sink, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ch, _ := q.Channel("encoder-wheel")
	for i := 1; i <= 10; i++ {
		ch.Push(Record{DeviceID: "encoder-wheel", DeviceType: "test", Seq: uint64(i)})
	}

	waitForCount(t, sink, 10)

	for i, rec := range sink.all() {
		if rec.Seq != uint64(i+1) {
			t.Errorf("record %d Seq = %d, want %d", i, rec.Seq, i+1)
		}
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if sink.closed != 1 {
		t.Errorf("consumer closed %d times, want 1", sink.closed)
	}
}

func TestManager_ConsumerErrorIsolation(t *testing.T) {
	m, q := newTestManager(t, "encoder-wheel")

	// The failing consumer registers first; the collector must still
	// receive every record.
	m.RegisterConsumer(failingConsumer{}, nil)
	sink := &collectingConsumer{name: "collector"}
	m.RegisterConsumer(sink, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop() //nolint:errcheck // Test cleanup

	ch, _ := q.Channel("encoder-wheel")
	for i := 1; i <= 5; i++ {
		ch.Push(Record{DeviceID: "encoder-wheel", Seq: uint64(i)})
	}

	waitForCount(t, sink, 5)
}

func TestManager_Filters(t *testing.T) {
	m, q := newTestManager(t, "encoder-wheel", "camera-meso")

	byDevice := &collectingConsumer{name: "by-device"}
	m.RegisterConsumer(byDevice, FilterDevice("encoder-wheel"))
	all := &collectingConsumer{name: "all"}
	m.RegisterConsumer(all, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop() //nolint:errcheck // Test cleanup

	enc, _ := q.Channel("encoder-wheel")
	cam, _ := q.Channel("camera-meso")
	enc.Push(Record{DeviceID: "encoder-wheel", DeviceType: "test", Seq: 1})
	cam.Push(Record{DeviceID: "camera-meso", DeviceType: "test", Seq: 1})
	cam.Push(Record{DeviceID: "camera-meso", DeviceType: "test", Seq: 2})

	waitForCount(t, all, 3)
	waitForCount(t, byDevice, 1)

	if got := byDevice.all()[0].DeviceID; got != "encoder-wheel" {
		t.Errorf("filtered record from %q, want encoder-wheel", got)
	}
}

func TestManager_LatestCache(t *testing.T) {
	m, q := newTestManager(t, "encoder-wheel")
	sink := &collectingConsumer{name: "collector"}
	m.RegisterConsumer(sink, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop() //nolint:errcheck // Test cleanup

	if _, ok := m.Latest("encoder-wheel"); ok {
		t.Error("Latest() before any record should report not found")
	}

	ch, _ := q.Channel("encoder-wheel")
	ch.Push(Record{DeviceID: "encoder-wheel", DeviceType: "encoder", Seq: 1})
	ch.Push(Record{DeviceID: "encoder-wheel", DeviceType: "encoder", Seq: 2})

	waitForCount(t, sink, 2)

	rec, ok := m.Latest("encoder-wheel")
	if !ok || rec.Seq != 2 {
		t.Errorf("Latest() = (%v, %v), want Seq 2", rec.Seq, ok)
	}

	rec, ok = m.LatestByType("encoder")
	if !ok || rec.Seq != 2 {
		t.Errorf("LatestByType() = (%v, %v), want Seq 2", rec.Seq, ok)
	}
}

func TestManager_StatsCountGaps(t *testing.T) {
	m, q := newTestManager(t, "encoder-wheel")
	sink := &collectingConsumer{name: "collector"}
	m.RegisterConsumer(sink, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop() //nolint:errcheck // Test cleanup

	ch, _ := q.Channel("encoder-wheel")
	for _, seq := range []uint64{1, 2, 5} { // 3 and 4 lost
		ch.Push(Record{DeviceID: "encoder-wheel", Seq: seq})
	}

	waitForCount(t, sink, 3)

	stats := m.Stats()
	if len(stats) != 1 {
		t.Fatalf("len(Stats()) = %d, want 1", len(stats))
	}
	s := stats[0]
	if s.Delivered != 3 {
		t.Errorf("Delivered = %d, want 3", s.Delivered)
	}
	if s.Gaps != 2 {
		t.Errorf("Gaps = %d, want 2", s.Gaps)
	}
	if s.LastSeq != 5 {
		t.Errorf("LastSeq = %d, want 5", s.LastSeq)
	}
}

func TestManager_StopFlushesBufferedRecords(t *testing.T) {
	m, q := newTestManager(t, "encoder-wheel")
	sink := &collectingConsumer{name: "collector"}
	m.RegisterConsumer(sink, nil)

	// Buffer records before the manager ever runs.
	ch, _ := q.Channel("encoder-wheel")
	for i := 1; i <= 20; i++ {
		ch.Push(Record{DeviceID: "encoder-wheel", Seq: uint64(i)})
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := sink.count(); got != 20 {
		t.Errorf("delivered %d records after Stop, want all 20", got)
	}
}

func TestManager_RegisterDeviceWhileRunning(t *testing.T) {
	m, q := newTestManager(t, "encoder-wheel")
	sink := &collectingConsumer{name: "collector"}
	m.RegisterConsumer(sink, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop() //nolint:errcheck // Test cleanup

	ch, err := q.Open("camera-late", 8, OverflowDropOldest)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	m.RegisterDevice(stubProducer{id: "camera-late", typ: "camera"}, ch)

	ch.Push(Record{DeviceID: "camera-late", DeviceType: "camera", Seq: 1})
	waitForCount(t, sink, 1)
}

func TestManager_StartStopErrors(t *testing.T) {
	m, _ := newTestManager(t, "encoder-wheel")

	if err := m.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop() before Start = %v, want ErrNotRunning", err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() = %v, want ErrAlreadyRunning", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}
