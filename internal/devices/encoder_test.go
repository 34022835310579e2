package devices

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/labrig/internal/data"
	"github.com/nerrad567/labrig/internal/device"
	"github.com/nerrad567/labrig/internal/infrastructure/config"
)

// captureSink collects pushed records for assertions.
type captureSink struct {
	mu   sync.Mutex
	recs []data.Record
}

func (s *captureSink) Push(rec data.Record) {
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func (s *captureSink) all() []data.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]data.Record, len(s.recs))
	copy(out, s.recs)
	return out
}

func waitForRecords(t *testing.T, s *captureSink, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d records, got %d", want, s.count())
}

func devEncoder(t *testing.T, params map[string]any) device.Device {
	t.Helper()
	if params == nil {
		params = map[string]any{}
	}
	params["development_mode"] = true
	if _, ok := params["sample_interval_ms"]; !ok {
		params["sample_interval_ms"] = 5
	}

	dev, err := NewEncoder(config.DeviceConfig{
		Type:   TypeEncoder,
		ID:     "encoder-wheel",
		Params: params,
	}, device.NoopLogger())
	if err != nil {
		t.Fatalf("NewEncoder() error = %v", err)
	}
	return dev
}

func TestEncoder_DevelopmentModeProducesRecords(t *testing.T) {
	dev := devEncoder(t, nil)
	enc := dev.(*Encoder)

	sink := &captureSink{}
	enc.Attach(sink)

	ctx := context.Background()
	if err := dev.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := dev.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitForRecords(t, sink, 5)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := dev.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	recs := sink.all()
	for i, rec := range recs {
		if rec.Seq != uint64(i+1) {
			t.Errorf("record %d Seq = %d, want %d", i, rec.Seq, i+1)
		}
		payload := rec.Payload.(map[string]any)
		if payload["speed_cms"].(float64) < 0 {
			t.Errorf("record %d speed negative", i)
		}
	}

	if latest, ok := enc.Latest(); !ok || latest.Seq != recs[len(recs)-1].Seq {
		t.Error("Latest() should return the last produced record")
	}
	if got := dev.Status().State; got != device.StateClosed {
		t.Errorf("final state = %v, want closed", got)
	}
}

func TestEncoder_CloseWhileRunningStopsProducer(t *testing.T) {
	dev := devEncoder(t, nil)
	enc := dev.(*Encoder)

	sink := &captureSink{}
	enc.Attach(sink)

	ctx := context.Background()
	if err := dev.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := dev.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitForRecords(t, sink, 3)

	// Teardown may close a running encoder without stopping it first.
	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	count := sink.count()
	time.Sleep(100 * time.Millisecond)
	if got := sink.count(); got != count {
		t.Errorf("records after Close = %d, want none past %d", got-count, count)
	}
}

func TestEncoder_StopWithoutStartIsNoOp(t *testing.T) {
	dev := devEncoder(t, nil)

	ctx := context.Background()
	if err := dev.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := dev.Stop(ctx); err != nil {
		t.Fatalf("Stop() before Start error = %v, want nil", err)
	}
	if got := dev.Status().State; got != device.StateInitialized {
		t.Errorf("state = %v, want initialized", got)
	}
	if err := dev.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestEncoder_StatusDetail(t *testing.T) {
	dev := devEncoder(t, nil)

	if err := dev.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := dev.Status().Detail; got != "synthetic signal at 200 Hz" {
		t.Errorf("Detail = %q, want the synthetic rate line", got)
	}
}

func TestEncoder_DoubleInitialize(t *testing.T) {
	dev := devEncoder(t, nil)

	ctx := context.Background()
	if err := dev.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := dev.Initialize(ctx); !errors.Is(err, device.ErrAlreadyInitialized) {
		t.Errorf("second Initialize() = %v, want ErrAlreadyInitialized", err)
	}
}

func TestEncoder_StartWithoutSink(t *testing.T) {
	dev := devEncoder(t, nil)

	ctx := context.Background()
	if err := dev.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := dev.Start(ctx); err == nil {
		t.Error("Start() without an attached sink should fail")
	}
}

func TestEncoder_FailAfterInjectsRuntimeFault(t *testing.T) {
	dev := devEncoder(t, map[string]any{"fail_after": 3})
	enc := dev.(*Encoder)

	sink := &captureSink{}
	enc.Attach(sink)

	ctx := context.Background()
	if err := dev.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := dev.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitForRecords(t, sink, 3)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if dev.Status().State == device.StateFailed {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	status := dev.Status()
	if status.State != device.StateFailed {
		t.Fatalf("state = %v, want failed", status.State)
	}
	if status.Err == nil {
		t.Error("Status().Err should carry the injected fault")
	}

	// Teardown still works on a failed device.
	if err := dev.Close(); err != nil {
		t.Errorf("Close() on failed device error = %v", err)
	}
}

func TestNewEncoder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"zero sample interval", map[string]any{"development_mode": true, "sample_interval_ms": 0}},
		{"zero cpr", map[string]any{"development_mode": true, "cpr": 0}},
		{"missing port outside dev mode", map[string]any{}},
		{"wrong param type", map[string]any{"development_mode": "yes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEncoder(config.DeviceConfig{
				Type:   TypeEncoder,
				ID:     "encoder-wheel",
				Params: tt.params,
			}, device.NoopLogger())
			if err == nil {
				t.Error("NewEncoder() expected validation error, got nil")
			}
		})
	}
}

func TestEncoder_SpeedConversion(t *testing.T) {
	dev := devEncoder(t, map[string]any{
		"sample_interval_ms": 100,
		"wheel_diameter_mm":  100.0,
		"cpr":                1000,
	})
	enc := dev.(*Encoder)

	// One full revolution per 100ms sample: pi * 10cm over 0.1s.
	got := enc.speedCms(1000)
	want := 3.14159265 * 10.0 / 0.1
	if diff := got - want; diff > 0.01 || diff < -0.01 {
		t.Errorf("speedCms(1000) = %v, want ~%v", got, want)
	}

	if enc.speedCms(0) != 0 {
		t.Error("speedCms(0) should be 0")
	}
}
