package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/labrig/internal/data"
	"github.com/nerrad567/labrig/internal/device"
	"github.com/nerrad567/labrig/internal/hardware"
	"github.com/nerrad567/labrig/internal/infrastructure/config"
)

// State is the procedure's position in a run.
//
// Runs move Idle -> Setup -> Running -> Stopping, then terminate in
// Done or Failed. Transitions are monotonic; teardown always runs on
// the way to either terminal state.
type State int

const (
	StateIdle State = iota
	StateSetup
	StateRunning
	StateStopping
	StateDone
	StateFailed
)

// String returns the lowercase state name used in logs, MQTT payloads
// and the archive.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSetup:
		return "setup"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Fault records one failure observed during a run.
//
// Faults collected during teardown are never re-raised; they exist so
// a cleanup failure cannot mask the fault that ended the run.
type Fault struct {
	Stage    string    `json:"stage"`
	DeviceID string    `json:"device_id,omitempty"`
	At       time.Time `json:"at"`
	Err      error     `json:"-"`
}

func (f Fault) String() string {
	if f.DeviceID != "" {
		return fmt.Sprintf("%s: %s: %v", f.Stage, f.DeviceID, f.Err)
	}
	return fmt.Sprintf("%s: %v", f.Stage, f.Err)
}

// Note is a timestamped experimenter annotation, archived with the run.
type Note struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Notifier receives session state transitions. The MQTT adapter in the
// entry point implements it; calls must return promptly.
type Notifier interface {
	SessionState(sessionID string, state State)
}

// Logger defines the logging interface used by the procedure.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Snapshot is a point-in-time view of the run for the API and logs.
type Snapshot struct {
	ID           string     `json:"id"`
	ExperimentID string     `json:"experiment_id"`
	Experimenter string     `json:"experimenter"`
	State        string     `json:"state"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	StoppedAt    *time.Time `json:"stopped_at,omitempty"`
	Faults       []string   `json:"faults,omitempty"`
	Notes        int        `json:"notes"`
}

// Deps are the optional collaborators of a procedure.
// Any field may be nil.
type Deps struct {
	Archive  *Repository
	Notifier Notifier
	Logger   Logger
}

// Procedure sequences one experimental run.
//
// Run drives the hardware manager and data manager through setup, a
// timed or triggered run phase with a status poll, and an unconditional
// teardown. The procedure is single-use: a second Run returns
// ErrAlreadyRan.
type Procedure struct {
	id    string
	cfg   *config.Config
	rig   *hardware.Manager
	queue *data.Queue
	dm    *data.Manager

	archive  *Repository
	notifier Notifier
	logger   Logger

	mu        sync.Mutex
	state     State
	faults    []Fault
	notes     []Note
	warned    map[string]bool
	startedAt time.Time
	stoppedAt time.Time
	ran       bool

	stopOnce sync.Once
	stopCh   chan struct{}

	teardownOnce sync.Once
}

// NewProcedure creates a procedure over an unbuilt rig.
func NewProcedure(cfg *config.Config, rig *hardware.Manager, queue *data.Queue, dm *data.Manager, deps Deps) *Procedure {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Procedure{
		id:       uuid.New().String(),
		cfg:      cfg,
		rig:      rig,
		queue:    queue,
		dm:       dm,
		archive:  deps.Archive,
		notifier: deps.Notifier,
		logger:   logger,
		state:    StateIdle,
		warned:   make(map[string]bool),
		stopCh:   make(chan struct{}),
	}
}

// ID returns the run's unique identifier.
func (p *Procedure) ID() string { return p.id }

// State returns the current state without blocking.
func (p *Procedure) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run executes the whole session and blocks until the terminal state.
//
// Returns nil when the run ends Done and ErrRunFailed when any fault
// was recorded. Teardown has already completed in both cases; no fault
// propagates past this boundary uncaught.
func (p *Procedure) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.ran {
		p.mu.Unlock()
		return ErrAlreadyRan
	}
	p.ran = true
	p.mu.Unlock()

	p.transition(StateSetup)
	if err := p.setup(ctx); err != nil {
		p.fault("setup", "", err)
		return p.finish()
	}

	// Running is announced only once every device has started; a start
	// failure ends the run while still in Setup.
	if err := p.rig.StartAll(ctx); err != nil {
		p.fault("start", "", err)
		return p.finish()
	}

	p.transition(StateRunning)
	p.mu.Lock()
	p.startedAt = time.Now()
	p.mu.Unlock()

	p.runPhase(ctx)
	return p.finish()
}

// setup builds the rig, wires every acquisition device into the data
// manager, and starts the drain loops.
func (p *Procedure) setup(ctx context.Context) error {
	if err := p.rig.Build(ctx, p.cfg.Devices); err != nil {
		return err
	}

	for _, acq := range p.rig.Acquisition() {
		devCfg := p.deviceConfig(acq.ID())
		ch, err := p.queue.Open(acq.ID(), devCfg.Buffer, data.PolicyFromString(devCfg.Overflow))
		if err != nil {
			return fmt.Errorf("opening channel for %s: %w", acq.ID(), err)
		}
		acq.Attach(ch)
		p.dm.RegisterDevice(acq, ch)
	}

	return p.dm.Start(ctx)
}

func (p *Procedure) deviceConfig(id string) config.DeviceConfig {
	for _, dc := range p.cfg.Devices {
		if dc.ID == id {
			return dc
		}
	}
	return config.DeviceConfig{}
}

// runPhase blocks until the run timer elapses, a stop arrives, the
// context is cancelled, or the status poll sees a failed device.
func (p *Procedure) runPhase(ctx context.Context) {
	var timer <-chan time.Time
	if !p.cfg.Session.StartOnTrigger {
		t := time.NewTimer(p.cfg.Duration())
		defer t.Stop()
		timer = t.C
	}

	poll := time.NewTicker(p.cfg.StatusPollInterval())
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Warn("run interrupted", "session_id", p.id, "reason", ctx.Err())
			return
		case <-p.stopCh:
			p.logger.Info("stop requested", "session_id", p.id)
			return
		case <-timer:
			p.logger.Info("run duration elapsed", "session_id", p.id)
			return
		case <-poll.C:
			if devID, err := p.pollDevices(); err != nil {
				p.fault("running", devID, err)
				return
			}
		}
	}
}

// pollDevices returns the first failed device it sees. Runtime errors
// on a device that is still running are logged once and tolerated.
func (p *Procedure) pollDevices() (string, error) {
	for _, dev := range p.rig.All() {
		st := dev.Status()
		if st.State == device.StateFailed {
			err := st.Err
			if err == nil {
				err = errors.New("device reported failed state")
			}
			return dev.ID(), err
		}
		if st.Err != nil && !p.warned[dev.ID()] {
			p.warned[dev.ID()] = true
			p.logger.Warn("device runtime error", "device_id", dev.ID(), "error", st.Err)
		}
	}
	return "", nil
}

// finish runs teardown and lands in the terminal state.
func (p *Procedure) finish() error {
	p.transition(StateStopping)
	p.teardown()

	p.mu.Lock()
	p.stoppedAt = time.Now()
	failed := len(p.faults) > 0
	var first Fault
	if failed {
		first = p.faults[0]
	}
	p.mu.Unlock()

	if failed {
		p.transition(StateFailed)
		return fmt.Errorf("%w: %s", ErrRunFailed, first)
	}
	p.transition(StateDone)
	return nil
}

// Stop requests the run end early. Safe to call from any goroutine,
// at any time, any number of times; before Run it makes the run phase
// return immediately once reached.
func (p *Procedure) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// AddNote attaches a timestamped annotation to the run.
func (p *Procedure) AddNote(text string) {
	p.mu.Lock()
	p.notes = append(p.notes, Note{At: time.Now(), Text: text})
	p.mu.Unlock()
}

// teardown stops and closes everything reachable, flushes the data
// manager and writes the archive. Unconditional and idempotent; every
// failure inside is recorded as a Fault and never escalated.
func (p *Procedure) teardown() {
	p.teardownOnce.Do(func() {
		ctx := context.Background()

		if err := p.rig.StopAll(ctx); err != nil {
			p.fault("teardown", "", err)
		}
		if err := p.rig.CloseAll(); err != nil {
			p.fault("teardown", "", err)
		}
		if err := p.dm.Stop(); err != nil && !errors.Is(err, data.ErrNotRunning) {
			p.fault("teardown", "", err)
		}
		p.writeArchive(ctx)
	})
}

// writeArchive persists the run row, per-device stats and notes.
// Skipped when no repository is wired.
func (p *Procedure) writeArchive(ctx context.Context) {
	if p.archive == nil {
		return
	}

	p.mu.Lock()
	finalState := StateDone
	if len(p.faults) > 0 {
		finalState = StateFailed
	}
	run := RunRecord{
		ID:           p.id,
		ExperimentID: p.cfg.Session.ExperimentID,
		Experimenter: p.cfg.Session.Experimenter,
		State:        finalState.String(),
		StartedAt:    p.startedAt,
		StoppedAt:    time.Now(),
		FaultCount:   len(p.faults),
	}
	notes := make([]Note, len(p.notes))
	copy(notes, p.notes)
	p.mu.Unlock()

	var results []DeviceResult
	for _, s := range p.dm.Stats() {
		run.RecordsDelivered += s.Delivered
		run.RecordsDropped += s.Dropped
		res := DeviceResult{DeviceStats: s}
		if dev, ok := p.rig.Device(s.DeviceID); ok {
			res.FinalState = dev.Status().State.String()
		}
		results = append(results, res)
	}

	if err := p.archive.SaveRun(ctx, run, results, notes); err != nil {
		p.fault("archive", "", err)
	}
}

func (p *Procedure) fault(stage, deviceID string, err error) {
	f := Fault{Stage: stage, DeviceID: deviceID, At: time.Now(), Err: err}
	p.mu.Lock()
	p.faults = append(p.faults, f)
	p.mu.Unlock()
	p.logger.Error("session fault", "session_id", p.id, "stage", stage, "device_id", deviceID, "error", err)
}

// Faults returns the faults recorded so far, in order of occurrence.
func (p *Procedure) Faults() []Fault {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Fault, len(p.faults))
	copy(out, p.faults)
	return out
}

// transition advances the state machine. Terminal states are sticky
// and re-entering the current state is a no-op.
func (p *Procedure) transition(next State) {
	p.mu.Lock()
	if p.state == next || p.state == StateDone || p.state == StateFailed {
		p.mu.Unlock()
		return
	}
	p.state = next
	p.mu.Unlock()

	p.logger.Info("session state", "session_id", p.id, "state", next.String())
	if p.notifier != nil {
		p.notifier.SessionState(p.id, next)
	}
}

// Snapshot returns a point-in-time view of the run.
func (p *Procedure) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{
		ID:           p.id,
		ExperimentID: p.cfg.Session.ExperimentID,
		Experimenter: p.cfg.Session.Experimenter,
		State:        p.state.String(),
		Notes:        len(p.notes),
	}
	if !p.startedAt.IsZero() {
		t := p.startedAt
		snap.StartedAt = &t
	}
	if !p.stoppedAt.IsZero() {
		t := p.stoppedAt
		snap.StoppedAt = &t
	}
	for _, f := range p.faults {
		snap.Faults = append(snap.Faults, f.String())
	}
	return snap
}
