package data

import (
	"context"
	"testing"
	"time"
)

func TestChannel_FIFO(t *testing.T) {
	q := NewQueue(8)
	ch, err := q.Open("encoder-wheel", 8, OverflowDropOldest)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	for i := 1; i <= 5; i++ {
		ch.Push(Record{DeviceID: "encoder-wheel", Seq: uint64(i)})
	}

	for i := 1; i <= 5; i++ {
		rec, ok := ch.TryPop()
		if !ok {
			t.Fatalf("TryPop() empty at %d", i)
		}
		if rec.Seq != uint64(i) {
			t.Errorf("Seq = %d, want %d", rec.Seq, i)
		}
	}
}

func TestChannel_DropOldest(t *testing.T) {
	q := NewQueue(8)
	ch, err := q.Open("camera-meso", 2, OverflowDropOldest)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 4; i++ {
			ch.Push(Record{Seq: uint64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push blocked under drop_oldest policy")
	}

	if got := ch.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}

	// Oldest two were evicted.
	rec, _ := ch.TryPop()
	if rec.Seq != 3 {
		t.Errorf("first remaining Seq = %d, want 3", rec.Seq)
	}
	rec, _ = ch.TryPop()
	if rec.Seq != 4 {
		t.Errorf("second remaining Seq = %d, want 4", rec.Seq)
	}
}

func TestChannel_BlockPolicy(t *testing.T) {
	q := NewQueue(8)
	ch, err := q.Open("daq-main", 1, OverflowBlock)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	ch.Push(Record{Seq: 1})

	pushed := make(chan struct{})
	go func() {
		ch.Push(Record{Seq: 2}) // blocks until the pop below
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("Push should block while channel is full")
	case <-time.After(50 * time.Millisecond):
	}

	if rec, _ := ch.TryPop(); rec.Seq != 1 {
		t.Fatalf("popped Seq = %d, want 1", rec.Seq)
	}

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after pop")
	}

	if got := ch.Dropped(); got != 0 {
		t.Errorf("Dropped() = %d, want 0 under block policy", got)
	}
}

func TestChannel_PopContext(t *testing.T) {
	q := NewQueue(8)
	ch, _ := q.Open("encoder-wheel", 2, OverflowDropOldest)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ch.Pop(ctx); err == nil {
		t.Error("Pop() with cancelled context should return error")
	}
}

func TestQueue_Open(t *testing.T) {
	q := NewQueue(16)

	ch, err := q.Open("encoder-wheel", 0, OverflowDropOldest)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if ch.Cap() != 16 {
		t.Errorf("Cap() = %d, want queue default 16", ch.Cap())
	}

	if _, err := q.Open("encoder-wheel", 4, OverflowBlock); err == nil {
		t.Error("duplicate Open() should fail")
	}

	if _, err := q.Open("", 4, OverflowBlock); err == nil {
		t.Error("Open() with empty device ID should fail")
	}
}

func TestQueue_ChannelsOrder(t *testing.T) {
	q := NewQueue(8)
	for _, id := range []string{"c", "a", "b"} {
		if _, err := q.Open(id, 2, OverflowDropOldest); err != nil {
			t.Fatalf("Open(%q) error = %v", id, err)
		}
	}

	channels := q.Channels()
	if len(channels) != 3 {
		t.Fatalf("len(Channels()) = %d, want 3", len(channels))
	}
	want := []string{"c", "a", "b"}
	for i, ch := range channels {
		if ch.DeviceID() != want[i] {
			t.Errorf("Channels()[%d] = %q, want %q", i, ch.DeviceID(), want[i])
		}
	}
}

func TestPolicyFromString(t *testing.T) {
	tests := []struct {
		input string
		want  OverflowPolicy
	}{
		{"block", OverflowBlock},
		{"drop_oldest", OverflowDropOldest},
		{"", OverflowDropOldest},
		{"nonsense", OverflowDropOldest},
	}

	for _, tt := range tests {
		if got := PolicyFromString(tt.input); got != tt.want {
			t.Errorf("PolicyFromString(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
