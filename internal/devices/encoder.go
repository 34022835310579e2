package devices

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/labrig/internal/data"
	"github.com/nerrad567/labrig/internal/device"
	"github.com/nerrad567/labrig/internal/infrastructure/config"
)

// TypeEncoder is the registry name for the rotary encoder driver.
const TypeEncoder = "encoder"

// Encoder defaults.
const (
	defaultSampleIntervalMs = 20
	defaultWheelDiameterMM  = 80.0
	defaultEncoderCPR       = 2400
)

// Encoder reads a wheel-mounted rotary encoder and streams speed records.
//
// In development mode it synthesizes a plausible locomotion signal on a
// sample ticker; otherwise it reads newline-delimited cumulative counts
// from a serial character device and converts count deltas to cm/s using
// the wheel diameter and counts-per-revolution.
//
// Payload shape: {"count": int, "delta": int, "speed_cms": float64}.
type Encoder struct {
	lc     device.Lifecycle
	id     string
	logger device.Logger

	port            string
	sampleInterval  time.Duration
	wheelDiameterMM float64
	cpr             int
	devMode         bool
	failAfter       int // stop with a fault after this many records; 0 disables

	portFile *os.File

	sink data.RecordSink

	mu         sync.Mutex
	seq        uint64
	latest     data.Record
	haveLatest bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewEncoder builds an encoder from its config entry.
func NewEncoder(cfg config.DeviceConfig, logger device.Logger) (device.Device, error) {
	intervalMs, err := intParam(cfg.Params, "sample_interval_ms", defaultSampleIntervalMs)
	if err != nil {
		return nil, err
	}
	if intervalMs <= 0 {
		return nil, fmt.Errorf("encoder %q: sample_interval_ms must be positive", cfg.ID)
	}
	diameter, err := floatParam(cfg.Params, "wheel_diameter_mm", defaultWheelDiameterMM)
	if err != nil {
		return nil, err
	}
	cpr, err := intParam(cfg.Params, "cpr", defaultEncoderCPR)
	if err != nil {
		return nil, err
	}
	if cpr <= 0 {
		return nil, fmt.Errorf("encoder %q: cpr must be positive", cfg.ID)
	}
	devMode, err := boolParam(cfg.Params, "development_mode", false)
	if err != nil {
		return nil, err
	}
	port, err := stringParam(cfg.Params, "port", "")
	if err != nil {
		return nil, err
	}
	if !devMode && port == "" {
		return nil, fmt.Errorf("encoder %q: port is required outside development mode", cfg.ID)
	}
	failAfter, err := intParam(cfg.Params, "fail_after", 0)
	if err != nil {
		return nil, err
	}

	return &Encoder{
		id:              cfg.ID,
		logger:          logger,
		port:            port,
		sampleInterval:  time.Duration(intervalMs) * time.Millisecond,
		wheelDiameterMM: diameter,
		cpr:             cpr,
		devMode:         devMode,
		failAfter:       failAfter,
	}, nil
}

func (e *Encoder) ID() string   { return e.id }
func (e *Encoder) Type() string { return TypeEncoder }

// DataRate returns the nominal sample rate in records per second.
func (e *Encoder) DataRate() float64 {
	return float64(time.Second) / float64(e.sampleInterval)
}

// Attach connects the record sink. Must happen before Start.
func (e *Encoder) Attach(sink data.RecordSink) {
	e.sink = sink
}

// Latest returns the most recent record produced.
func (e *Encoder) Latest() (data.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest, e.haveLatest
}

// Status reports the lifecycle snapshot without touching the hardware.
func (e *Encoder) Status() device.Status {
	return e.lc.Status()
}

// Initialize opens the serial port (or verifies nothing in dev mode).
func (e *Encoder) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.lc.ToInitialized(); err != nil {
		return err
	}

	if e.devMode {
		e.lc.SetDetail(fmt.Sprintf("synthetic signal at %.0f Hz", e.DataRate()))
		e.logger.Info("encoder initialised in development mode", "device_id", e.id)
		return nil
	}

	f, err := os.OpenFile(e.port, os.O_RDONLY, 0)
	if err != nil {
		err = fmt.Errorf("opening encoder port %s: %w", e.port, err)
		e.lc.Fail(err)
		return err
	}
	e.portFile = f
	e.lc.SetDetail(fmt.Sprintf("port %s at %.0f Hz", e.port, e.DataRate()))
	e.logger.Info("encoder initialised", "device_id", e.id, "port", e.port)
	return nil
}

// Start spawns the single producer goroutine.
func (e *Encoder) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.sink == nil {
		return fmt.Errorf("encoder %q: no sink attached", e.id)
	}
	if err := e.lc.ToRunning(); err != nil {
		return err
	}

	done := make(chan struct{})
	e.done = done
	e.wg.Add(1)
	if e.devMode {
		go e.runSynthetic(done)
	} else {
		go e.runSerial(done)
	}
	return nil
}

// Stop ends acquisition and waits for the producer goroutine. A no-op
// when the encoder never started.
func (e *Encoder) Stop(ctx context.Context) error {
	stopped, err := e.lc.ToStopped()
	if err != nil {
		return err
	}
	if !stopped {
		return nil
	}
	close(e.done)
	e.done = nil
	if e.portFile != nil {
		// Unblocks the scanner in runSerial.
		e.portFile.Close() //nolint:errcheck // Shutdown path
		e.portFile = nil
	}

	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("encoder %q: stop: %w", e.id, ctx.Err())
	}
}

// Close releases the port. Idempotent from any state; closing a
// running encoder ends acquisition first so no records are pushed
// after Close returns.
func (e *Encoder) Close() error {
	if !e.lc.ToClosed() {
		return nil
	}
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
	if e.portFile != nil {
		e.portFile.Close() //nolint:errcheck // Best effort
		e.portFile = nil
	}
	e.wg.Wait()
	e.logger.Debug("encoder closed", "device_id", e.id)
	return nil
}

// runSynthetic produces a smooth pseudo-locomotion signal on a ticker.
func (e *Encoder) runSynthetic(done <-chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sampleInterval)
	defer ticker.Stop()

	var count int
	var phase float64
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			phase += 0.05
			// Bursts of running separated by rest, with jitter.
			delta := int(math.Max(0, math.Sin(phase))*40) + rand.Intn(3)
			count += delta
			if !e.emit(count, delta) {
				return
			}
		}
	}
}

// runSerial reads cumulative counts, one integer per line, from the port.
func (e *Encoder) runSerial(done <-chan struct{}) {
	defer e.wg.Done()

	scanner := bufio.NewScanner(e.portFile)
	var prev int
	var havePrev bool
	for scanner.Scan() {
		select {
		case <-done:
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		count, err := strconv.Atoi(line)
		if err != nil {
			e.lc.SetRuntimeErr(fmt.Errorf("encoder %q: bad sample %q: %w", e.id, line, err))
			continue
		}

		delta := 0
		if havePrev {
			delta = count - prev
		}
		prev, havePrev = count, true

		if !e.emit(count, delta) {
			return
		}
	}

	// Scanner ends on port close (normal stop) or read error.
	if err := scanner.Err(); err != nil {
		select {
		case <-done:
		default:
			e.lc.Fail(fmt.Errorf("encoder %q: serial read: %w", e.id, err))
		}
	}
}

// emit pushes one record and applies fault injection.
// Returns false when the goroutine should exit.
func (e *Encoder) emit(count, delta int) bool {
	speed := e.speedCms(delta)

	e.mu.Lock()
	e.seq++
	rec := data.Record{
		DeviceID:   e.id,
		DeviceType: TypeEncoder,
		Seq:        e.seq,
		Timestamp:  time.Now(),
		Payload: map[string]any{
			"count":     count,
			"delta":     delta,
			"speed_cms": speed,
		},
	}
	e.latest = rec
	e.haveLatest = true
	seq := e.seq
	e.mu.Unlock()

	e.sink.Push(rec)

	if e.failAfter > 0 && seq >= uint64(e.failAfter) { // #nosec G115 -- failAfter validated positive
		e.lc.Fail(fmt.Errorf("encoder %q: injected fault after %d records", e.id, e.failAfter))
		return false
	}
	return true
}

// speedCms converts a count delta over one sample interval to cm/s.
func (e *Encoder) speedCms(delta int) float64 {
	revolutions := float64(delta) / float64(e.cpr)
	distanceCm := revolutions * math.Pi * e.wheelDiameterMM / 10.0
	return distanceCm / e.sampleInterval.Seconds()
}
