package light

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joakim000/grow/internal/alert"
	"github.com/joakim000/grow/internal/device"
	"github.com/joakim000/grow/internal/event"
)

// Driver switches lamps. Errors should wrap hardware.ErrActuatorFault.
type Driver interface {
	SetLamp(ctx context.Context, lightID int, on bool) error
}

// Logger defines the logging interface used by the scheduler.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Decision is the outcome of one scheduling pass for a Light station.
type Decision struct {
	// LampOn is the state the schedule asks for.
	LampOn bool

	// Commanded is true when SetLamp was sent during this pass.
	Commanded bool

	// Alert is the low-light evaluation of the level passed to Apply.
	Alert alert.Result
}

// lampState caches the last lamp state that was successfully commanded.
type lampState struct {
	mu    sync.Mutex
	known bool
	on    bool
}

// Scheduler switches lamps according to their daily window and sends a
// command only when the wanted state differs from the last one that was
// commanded successfully.
//
// Thread Safety:
//   - Safe for concurrent use; each lamp has its own lock.
type Scheduler struct {
	registry *device.Registry
	driver   Driver
	loc      *time.Location
	sink     event.Sink
	logger   Logger

	mu    sync.Mutex
	lamps map[int]*lampState
}

// NewScheduler creates a scheduler.
//
// Parameters:
//   - registry: Source of Light station settings
//   - driver: Lamp actuator
//   - loc: Site time zone the lamp windows are expressed in; nil means UTC
//   - sink: Receives lamp_changed events; nil discards
//   - logger: Optional; nil discards
func NewScheduler(registry *device.Registry, driver Driver, loc *time.Location, sink event.Sink, logger Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if sink == nil {
		sink = event.Discard
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scheduler{
		registry: registry,
		driver:   driver,
		loc:      loc,
		sink:     sink,
		logger:   logger,
		lamps:    make(map[int]*lampState),
	}
}

func (s *Scheduler) lamp(id int) *lampState {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lamps[id]
	if !ok {
		l = &lampState{}
		s.lamps[id] = l
	}
	return l
}

// Apply runs the schedule for a Light station and evaluates its level.
//
// Returns:
//   - Decision: Wanted lamp state, whether a command went out, alert result
//   - error: Unknown station, or the wrapped SetLamp failure; the cached
//     state is left unchanged so the next call retries the command
func (s *Scheduler) Apply(ctx context.Context, lightID int, now time.Time, level float64) (Decision, error) {
	d, err := s.Schedule(ctx, lightID, now)
	if err != nil {
		return d, err
	}
	settings, _ := s.registry.Light(lightID)
	d.Alert = Evaluate(settings, d.LampOn, level)
	return d, nil
}

// Schedule runs the lamp schedule without a light reading. The control loop
// uses it when the light sensor is unavailable.
func (s *Scheduler) Schedule(ctx context.Context, lightID int, now time.Time) (Decision, error) {
	settings, err := s.registry.Light(lightID)
	if err != nil {
		return Decision{}, err
	}

	want := LampOn(device.TimeOfDayOf(now.In(s.loc)), settings.LampOn, settings.LampOff)
	d := Decision{LampOn: want}

	l := s.lamp(lightID)
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.known && l.on == want {
		return d, nil
	}

	if err := s.driver.SetLamp(ctx, lightID, want); err != nil {
		s.logger.Warn("lamp command failed, retrying next pass", "light_id", lightID, "on", want, "error", err)
		return d, fmt.Errorf("switching lamp %d %s: %w", lightID, onOff(want), err)
	}

	old := "unknown"
	if l.known {
		old = onOff(l.on)
	}
	l.known, l.on = true, want
	d.Commanded = true

	ref := device.Ref{Kind: device.KindLight, ID: lightID}
	s.logger.Info("lamp switched", "device", ref.String(), "on", want)
	s.sink.Emit(ctx, event.Changed(event.TypeLamp, ref, old, onOff(want), now))
	return d, nil
}

// Commanded returns the last successfully commanded state of a lamp.
func (s *Scheduler) Commanded(lightID int) (on, known bool) {
	l := s.lamp(lightID)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on, l.known
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
