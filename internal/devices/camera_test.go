package devices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/labrig/internal/device"
	"github.com/nerrad567/labrig/internal/infrastructure/config"
)

func testCamera(t *testing.T, params map[string]any) *Camera {
	t.Helper()
	if params == nil {
		params = map[string]any{"fps": 100}
	}
	dev, err := NewCamera(config.DeviceConfig{
		Type:   TypeCamera,
		ID:     "camera-meso",
		Params: params,
	}, device.NoopLogger())
	if err != nil {
		t.Fatalf("NewCamera() error = %v", err)
	}
	return dev.(*Camera)
}

func TestCamera_ProducesFrameMetadata(t *testing.T) {
	cam := testCamera(t, nil)
	sink := &captureSink{}
	cam.Attach(sink)

	ctx := context.Background()
	if err := cam.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := cam.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitForRecords(t, sink, 3)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := cam.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	rec := sink.all()[0]
	if rec.DeviceType != TypeCamera {
		t.Errorf("DeviceType = %q, want camera", rec.DeviceType)
	}
	payload := rec.Payload.(map[string]any)
	if payload["frame"].(uint64) != 1 {
		t.Errorf("first frame index = %v, want 1", payload["frame"])
	}
	if _, ok := payload["exposure_ms"]; !ok {
		t.Error("payload missing exposure_ms")
	}
}

func TestCamera_CloseWhileRunningStopsProducer(t *testing.T) {
	cam := testCamera(t, nil)
	sink := &captureSink{}
	cam.Attach(sink)

	ctx := context.Background()
	if err := cam.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := cam.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitForRecords(t, sink, 3)

	// Teardown may close a running camera without stopping it first.
	if err := cam.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := cam.Status().State; got != device.StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}

	// The frame clock is joined by Close; nothing lands afterwards.
	count := sink.count()
	time.Sleep(100 * time.Millisecond)
	if got := sink.count(); got != count {
		t.Errorf("records after Close = %d, want none past %d", got-count, count)
	}
}

func TestCamera_StopWithoutStartIsNoOp(t *testing.T) {
	cam := testCamera(t, nil)
	cam.Attach(&captureSink{})

	ctx := context.Background()
	if err := cam.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := cam.Stop(ctx); err != nil {
		t.Fatalf("Stop() before Start error = %v, want nil", err)
	}
	if got := cam.Status().State; got != device.StateInitialized {
		t.Errorf("state = %v, want initialized", got)
	}
	if err := cam.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := cam.Start(ctx); !errors.Is(err, device.ErrClosed) {
		t.Errorf("Start() after Close = %v, want ErrClosed", err)
	}
}

func TestCamera_StatusDetail(t *testing.T) {
	cam := testCamera(t, nil)

	if err := cam.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := cam.Status().Detail; got != "100 fps" {
		t.Errorf("Detail = %q, want \"100 fps\"", got)
	}
}

func TestCamera_ExposureParameter(t *testing.T) {
	cam := testCamera(t, nil)

	got, err := cam.GetParameter("exposure_ms")
	if err != nil {
		t.Fatalf("GetParameter() error = %v", err)
	}
	if got.(float64) != defaultExposureMs {
		t.Errorf("default exposure = %v, want %v", got, defaultExposureMs)
	}

	if err := cam.SetParameter("exposure_ms", 25.0); err != nil {
		t.Fatalf("SetParameter() error = %v", err)
	}
	got, _ = cam.GetParameter("exposure_ms")
	if got.(float64) != 25.0 {
		t.Errorf("exposure after set = %v, want 25.0", got)
	}

	if err := cam.SetParameter("exposure_ms", 0.0); err == nil {
		t.Error("SetParameter() below minimum should fail")
	}
	if err := cam.SetParameter("gain", 1.0); !errors.Is(err, device.ErrUnknownParameter) {
		t.Errorf("SetParameter(gain) = %v, want ErrUnknownParameter", err)
	}
	if _, err := cam.GetParameter("gain"); !errors.Is(err, device.ErrUnknownParameter) {
		t.Errorf("GetParameter(gain) = %v, want ErrUnknownParameter", err)
	}
}

func TestNewCamera_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"zero fps", map[string]any{"fps": 0}},
		{"exposure below minimum", map[string]any{"exposure_ms": 0.01}},
		{"wrong fps type", map[string]any{"fps": "fast"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCamera(config.DeviceConfig{
				Type:   TypeCamera,
				ID:     "camera-meso",
				Params: tt.params,
			}, device.NoopLogger())
			if err == nil {
				t.Error("NewCamera() expected validation error, got nil")
			}
		})
	}
}
