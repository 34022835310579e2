package devices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/labrig/internal/data"
	"github.com/nerrad567/labrig/internal/device"
	"github.com/nerrad567/labrig/internal/infrastructure/config"
)

// TypeCamera is the registry name for the frame-grabber driver.
const TypeCamera = "camera"

const (
	defaultCameraFPS  = 30
	defaultExposureMs = 10.0
	minExposureMs     = 0.1
)

// Camera produces per-frame metadata records at a fixed frame rate.
//
// Frame pixel data stays on the acquisition host's disk ring; only the
// metadata (frame index, exposure) travels through the queue. Exposure
// is a Controllable runtime parameter.
type Camera struct {
	lc     device.Lifecycle
	id     string
	logger device.Logger

	fps       int
	failAfter int

	sink data.RecordSink

	mu         sync.Mutex
	exposureMs float64
	seq        uint64
	latest     data.Record
	haveLatest bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewCamera builds a camera from its config entry.
func NewCamera(cfg config.DeviceConfig, logger device.Logger) (device.Device, error) {
	fps, err := intParam(cfg.Params, "fps", defaultCameraFPS)
	if err != nil {
		return nil, err
	}
	if fps <= 0 {
		return nil, fmt.Errorf("camera %q: fps must be positive", cfg.ID)
	}
	exposure, err := floatParam(cfg.Params, "exposure_ms", defaultExposureMs)
	if err != nil {
		return nil, err
	}
	if exposure < minExposureMs {
		return nil, fmt.Errorf("camera %q: exposure_ms must be at least %v", cfg.ID, minExposureMs)
	}
	failAfter, err := intParam(cfg.Params, "fail_after", 0)
	if err != nil {
		return nil, err
	}

	return &Camera{
		id:         cfg.ID,
		logger:     logger,
		fps:        fps,
		exposureMs: exposure,
		failAfter:  failAfter,
	}, nil
}

func (c *Camera) ID() string   { return c.id }
func (c *Camera) Type() string { return TypeCamera }

// DataRate returns the frame rate in records per second.
func (c *Camera) DataRate() float64 {
	return float64(c.fps)
}

// Attach connects the record sink. Must happen before Start.
func (c *Camera) Attach(sink data.RecordSink) {
	c.sink = sink
}

// Latest returns the most recent frame metadata record.
func (c *Camera) Latest() (data.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.haveLatest
}

// Status reports the lifecycle snapshot without blocking.
func (c *Camera) Status() device.Status {
	return c.lc.Status()
}

// SetParameter adjusts a runtime parameter. Only "exposure_ms" is exposed.
func (c *Camera) SetParameter(name string, value any) error {
	if name != "exposure_ms" {
		return fmt.Errorf("%w: %s", device.ErrUnknownParameter, name)
	}
	var exposure float64
	switch v := value.(type) {
	case float64:
		exposure = v
	case int:
		exposure = float64(v)
	default:
		return fmt.Errorf("camera %q: exposure_ms: expected number, got %T", c.id, value)
	}
	if exposure < minExposureMs {
		return fmt.Errorf("camera %q: exposure_ms must be at least %v", c.id, minExposureMs)
	}

	c.mu.Lock()
	c.exposureMs = exposure
	c.mu.Unlock()
	return nil
}

// GetParameter reads a runtime parameter.
func (c *Camera) GetParameter(name string) (any, error) {
	if name != "exposure_ms" {
		return nil, fmt.Errorf("%w: %s", device.ErrUnknownParameter, name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exposureMs, nil
}

// Initialize verifies the configuration. The simulated grabber has no
// hardware handshake; a real sensor probe would happen here.
func (c *Camera) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.lc.ToInitialized(); err != nil {
		return err
	}
	c.lc.SetDetail(fmt.Sprintf("%d fps", c.fps))
	c.logger.Info("camera initialised", "device_id", c.id, "fps", c.fps)
	return nil
}

// Start spawns the single frame-clock goroutine.
func (c *Camera) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.sink == nil {
		return fmt.Errorf("camera %q: no sink attached", c.id)
	}
	if err := c.lc.ToRunning(); err != nil {
		return err
	}

	done := make(chan struct{})
	c.done = done
	c.wg.Add(1)
	go c.run(done)
	return nil
}

// Stop ends the frame clock and waits for the goroutine. A no-op when
// the camera never started.
func (c *Camera) Stop(ctx context.Context) error {
	stopped, err := c.lc.ToStopped()
	if err != nil {
		return err
	}
	if !stopped {
		return nil
	}
	close(c.done)
	c.done = nil

	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("camera %q: stop: %w", c.id, ctx.Err())
	}
}

// Close releases resources. Idempotent from any state; closing a
// running camera ends the frame clock first so no frames are pushed
// after Close returns.
func (c *Camera) Close() error {
	if !c.lc.ToClosed() {
		return nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.wg.Wait()
	c.logger.Debug("camera closed", "device_id", c.id)
	return nil
}

func (c *Camera) run(done <-chan struct{}) {
	defer c.wg.Done()

	interval := time.Second / time.Duration(c.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.seq++
			rec := data.Record{
				DeviceID:   c.id,
				DeviceType: TypeCamera,
				Seq:        c.seq,
				Timestamp:  time.Now(),
				Payload: map[string]any{
					"frame":       c.seq,
					"exposure_ms": c.exposureMs,
				},
			}
			c.latest = rec
			c.haveLatest = true
			seq := c.seq
			c.mu.Unlock()

			c.sink.Push(rec)

			if c.failAfter > 0 && seq >= uint64(c.failAfter) { // #nosec G115 -- validated positive
				c.lc.Fail(fmt.Errorf("camera %q: injected fault after %d frames", c.id, c.failAfter))
				return
			}
		}
	}
}
