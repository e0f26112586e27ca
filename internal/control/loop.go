package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/joakim000/grow/internal/alert"
	"github.com/joakim000/grow/internal/device"
	"github.com/joakim000/grow/internal/event"
	"github.com/joakim000/grow/internal/hardware"
	"github.com/joakim000/grow/internal/irrigation"
	"github.com/joakim000/grow/internal/light"
)

// maxParallelPolls bounds how many devices are polled at once in a tick.
const maxParallelPolls = 8

// defaultActuatorHold matches the gobreaker default open interval.
const defaultActuatorHold = 60 * time.Second

// Config holds the loop settings.
type Config struct {
	Interval      time.Duration
	SensorTimeout time.Duration

	// Hysteresis is the de-escalation margin; 0 evaluates every reading on its own.
	Hysteresis float64

	// BreakerMaxFailures consecutive read failures open a device's breaker
	// for BreakerOpenTimeout.
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	// ActuatorHold is how long a Water station gets no new cycles after
	// one failed on an actuator fault. Defaults to BreakerOpenTimeout.
	ActuatorHold time.Duration

	Tank alert.TankBands
}

// Deps holds the collaborators of a Loop. Fans, Irrigator and Lights are
// optional; without them the loop only monitors.
type Deps struct {
	Registry  *device.Registry
	Sensor    Sensor
	Fans      FanDriver
	Irrigator Irrigator
	Lights    Lights
	Clock     clockwork.Clock
	Sink      event.Sink
	Logger    Logger

	// Reports delivers finished watering cycles to Run, see HandleReport.
	Reports <-chan irrigation.Report
}

// Loop polls every Air, Water, Light and Tank device once per tick,
// evaluates alert levels and drives fans, lamps and watering.
//
// Thread Safety:
//   - Tick, Run and Status are safe for concurrent use. Each device has
//     its own lock; unrelated devices never wait for each other.
type Loop struct {
	registry  *device.Registry
	sensor    Sensor
	rpm       FanRPMReader
	fans      FanDriver
	irrigator Irrigator
	reports   <-chan irrigation.Report
	lights    Lights
	clock     clockwork.Clock
	sink      event.Sink
	logger    Logger
	cfg       Config
	eval      alert.Evaluator

	order  []device.Ref
	states map[device.Ref]*deviceState
}

// New creates a control loop.
//
// Returns:
//   - error: when Registry or Sensor is missing or the interval is not positive
func New(deps Deps, cfg Config) (*Loop, error) {
	if deps.Registry == nil || deps.Sensor == nil {
		return nil, fmt.Errorf("control: registry and sensor are required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("control: interval must be positive")
	}
	if cfg.SensorTimeout <= 0 {
		cfg.SensorTimeout = cfg.Interval
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 1
	}
	if cfg.ActuatorHold <= 0 {
		cfg.ActuatorHold = cfg.BreakerOpenTimeout
	}
	if cfg.ActuatorHold <= 0 {
		cfg.ActuatorHold = defaultActuatorHold
	}

	l := &Loop{
		registry:  deps.Registry,
		sensor:    deps.Sensor,
		fans:      deps.Fans,
		irrigator: deps.Irrigator,
		reports:   deps.Reports,
		lights:    deps.Lights,
		clock:     deps.Clock,
		sink:      deps.Sink,
		logger:    deps.Logger,
		cfg:       cfg,
		eval:      alert.Evaluator{Hysteresis: cfg.Hysteresis},
		states:    make(map[device.Ref]*deviceState),
	}
	if rpm, ok := deps.Sensor.(FanRPMReader); ok {
		l.rpm = rpm
	}
	if l.clock == nil {
		l.clock = clockwork.NewRealClock()
	}
	if l.sink == nil {
		l.sink = event.Discard
	}
	if l.logger == nil {
		l.logger = noopLogger{}
	}

	for _, ref := range deps.Registry.Refs() {
		switch ref.Kind {
		case device.KindAir, device.KindWater, device.KindLight, device.KindTank:
		default:
			continue
		}
		l.order = append(l.order, ref)
		l.states[ref] = &deviceState{ref: ref, breaker: l.newBreaker(ref)}
	}
	return l, nil
}

func (l *Loop) newBreaker(ref device.Ref) *gobreaker.CircuitBreaker {
	maxFailures := l.cfg.BreakerMaxFailures
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        ref.String(),
		MaxRequests: 1,
		Timeout:     l.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.logger.Info("sensor breaker state changed", "device", name, "from", from.String(), "to", to.String())
		},
	})
}

// Run ticks until ctx is cancelled. The first tick runs immediately.
// Between ticks it consumes Deps.Reports.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("control loop started", "interval", l.cfg.Interval, "devices", len(l.order))

	l.Tick(ctx)

	ticker := l.clock.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("control loop stopped")
			return nil
		case <-ticker.Chan():
			l.Tick(ctx)
		case r := <-l.reports:
			l.HandleReport(ctx, r)
		}
	}
}

// Tick polls every device once and publishes the site status.
func (l *Loop) Tick(ctx context.Context) {
	now := l.clock.Now()

	var g errgroup.Group
	g.SetLimit(maxParallelPolls)
	for _, ref := range l.order {
		st := l.states[ref]
		g.Go(func() error {
			l.poll(ctx, st, now)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return
	}
	l.publishStatus(ctx, now)

	if took := l.clock.Since(now); took > l.cfg.Interval {
		l.logger.Warn("control tick overran interval", "took", took, "interval", l.cfg.Interval)
	}
}

func (l *Loop) poll(ctx context.Context, st *deviceState, now time.Time) {
	if ctx.Err() != nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	var err error
	switch st.ref.Kind {
	case device.KindWater:
		err = l.pollWater(ctx, st, now)
	case device.KindAir:
		err = l.pollAir(ctx, st, now)
	case device.KindLight:
		err = l.pollLight(ctx, st, now)
	case device.KindTank:
		err = l.pollTank(ctx, st, now)
	}

	switch {
	case err != nil && ctx.Err() != nil:
		// Shutting down; the failure says nothing about the device.
	case err != nil:
		l.markDegraded(ctx, st, err, now)
	default:
		l.markHealthy(ctx, st, now)
	}
}

func (l *Loop) pollWater(ctx context.Context, st *deviceState, now time.Time) error {
	s, err := l.registry.Water(st.ref.ID)
	if err != nil {
		return err
	}
	v, err := l.read(ctx, st)
	if err != nil {
		return err
	}
	l.sink.Emit(ctx, event.Reading(st.ref, hardware.Quantity(device.KindWater), v, now))

	st.held = l.eval.Next(st.held, v, alert.MoistureBand(s).Evaluate)
	l.report(ctx, st, st.held, v, now)

	if st.actuatorFault != nil && now.Before(st.holdUntil) {
		return st.actuatorFault
	}
	if l.irrigator != nil && alert.WateringEligible(s, v) {
		if l.irrigator.Submit(st.ref.ID, v) {
			l.logger.Info("watering cycle queued", "device", st.ref.String(), "reading", v)
			if st.actuatorFault != nil {
				// One trial cycle per hold; its report decides.
				st.holdUntil = now.Add(l.cfg.ActuatorHold)
			}
		}
	}
	return st.actuatorFault
}

// HandleReport applies the result of a finished watering cycle. A cycle that
// failed on an actuator fault marks its Water station degraded and holds
// further cycles for ActuatorHold; a completed cycle clears the fault, and
// the station recovers on its next successful poll.
func (l *Loop) HandleReport(ctx context.Context, r irrigation.Report) {
	st, ok := l.states[device.Ref{Kind: device.KindWater, ID: r.WaterID}]
	if !ok {
		return
	}
	now := l.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	switch {
	case r.Outcome == irrigation.OutcomeFailed && errors.Is(r.Reason, hardware.ErrActuatorFault):
		st.actuatorFault = r.Reason
		st.holdUntil = now.Add(l.cfg.ActuatorHold)
		l.logger.Warn("watering held after actuator fault",
			"device", st.ref.String(),
			"cycle_id", r.CycleID,
			"hold", l.cfg.ActuatorHold,
			"error", r.Reason,
		)
		l.markDegraded(ctx, st, r.Reason, now)
	case r.Outcome == irrigation.OutcomeCompleted && st.actuatorFault != nil:
		st.actuatorFault = nil
		st.holdUntil = time.Time{}
		l.logger.Info("watering actuators working again", "device", st.ref.String(), "cycle_id", r.CycleID)
	}
}

func (l *Loop) pollAir(ctx context.Context, st *deviceState, now time.Time) error {
	s, err := l.registry.Air(st.ref.ID)
	if err != nil {
		return err
	}
	temp, err := l.read(ctx, st)
	if err != nil {
		return err
	}
	l.sink.Emit(ctx, event.Reading(st.ref, hardware.Quantity(device.KindAir), temp, now))

	// The RPM floor only applies to a fan that was already running before
	// this tick; a fan started now has not spun up yet.
	wasRunning := st.fanKnown && st.fan != alert.FanOff

	st.held = l.eval.Next(st.held, temp, alert.TemperatureBand(s).Evaluate)
	st.rpm = nil

	if l.fans != nil {
		if err := l.driveFan(ctx, st, alert.FanModeFor(s, temp), now); err != nil {
			l.report(ctx, st, st.held, temp, now)
			return err
		}
	}

	result := st.held
	if l.rpm != nil && wasRunning && st.fan != alert.FanOff {
		rpm, err := l.readRPM(ctx, st.ref.ID)
		if err != nil {
			l.report(ctx, st, st.held, temp, now)
			return err
		}
		st.rpm = &rpm
		l.sink.Emit(ctx, event.Reading(st.ref, "fan_rpm", rpm, now))
		result = alert.Worst(st.held, alert.FanRPM(s, rpm))
	}

	l.report(ctx, st, result, temp, now)
	return nil
}

func (l *Loop) driveFan(ctx context.Context, st *deviceState, mode alert.FanMode, now time.Time) error {
	if st.fanKnown && st.fan == mode {
		return nil
	}
	if err := l.fans.SetFan(ctx, st.ref.ID, mode); err != nil {
		return fmt.Errorf("setting %s fan %s: %w", st.ref, mode, err)
	}

	old := "unknown"
	if st.fanKnown {
		old = st.fan.String()
	}
	st.fan, st.fanKnown = mode, true

	l.logger.Info("fan mode changed", "device", st.ref.String(), "from", old, "to", mode.String())
	l.sink.Emit(ctx, event.Changed(event.TypeFanMode, st.ref, old, mode.String(), now))
	return nil
}

func (l *Loop) pollLight(ctx context.Context, st *deviceState, now time.Time) error {
	s, err := l.registry.Light(st.ref.ID)
	if err != nil {
		return err
	}

	level, readErr := l.read(ctx, st)
	if readErr != nil {
		// The schedule does not depend on the sensor.
		if l.lights != nil {
			if d, err := l.lights.Schedule(ctx, st.ref.ID, now); err == nil {
				st.lampOn = &d.LampOn
			}
		}
		return readErr
	}
	l.sink.Emit(ctx, event.Reading(st.ref, hardware.Quantity(device.KindLight), level, now))

	eval := alert.LightFloor(s).Evaluate
	if l.lights != nil {
		d, err := l.lights.Apply(ctx, st.ref.ID, now, level)
		if err != nil {
			return err
		}
		st.lampOn = &d.LampOn
		eval = func(v float64) alert.Result { return light.Evaluate(s, d.LampOn, v) }
	}

	st.held = l.eval.Next(st.held, level, eval)
	l.report(ctx, st, st.held, level, now)
	return nil
}

func (l *Loop) pollTank(ctx context.Context, st *deviceState, now time.Time) error {
	v, err := l.read(ctx, st)
	if err != nil {
		l.setTank(ctx, st, alert.TankNoData, nil, now)
		return err
	}
	l.sink.Emit(ctx, event.Reading(st.ref, hardware.Quantity(device.KindTank), v, now))
	l.setTank(ctx, st, l.cfg.Tank.Classify(v), &v, now)
	return nil
}

func (l *Loop) setTank(ctx context.Context, st *deviceState, level alert.TankLevel, v *float64, now time.Time) {
	if v != nil {
		st.value = v
	}
	st.result = level.Result()
	if level == st.tank {
		return
	}

	e := event.Changed(event.TypeTankLevel, st.ref, st.tank.String(), level.String(), now)
	e.Value = v
	st.tank = level
	l.sink.Emit(ctx, e)
}

// read takes one primary reading through the device's breaker.
func (l *Loop) read(ctx context.Context, st *deviceState) (float64, error) {
	v, err := st.breaker.Execute(func() (any, error) {
		rctx, cancel := context.WithTimeout(ctx, l.cfg.SensorTimeout)
		defer cancel()
		return l.sensor.Read(rctx, st.ref.Kind, st.ref.ID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, fmt.Errorf("%w: %w: %s", hardware.ErrSensorUnavailable, ErrBreakerOpen, st.ref)
	}
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (l *Loop) readRPM(ctx context.Context, airID int) (float64, error) {
	rctx, cancel := context.WithTimeout(ctx, l.cfg.SensorTimeout)
	defer cancel()
	return l.rpm.ReadFanRPM(rctx, airID)
}

// report records a result and emits alert_changed when the level moved.
func (l *Loop) report(ctx context.Context, st *deviceState, r alert.Result, v float64, now time.Time) {
	st.value = &v
	if r == st.result {
		return
	}
	old := st.result
	st.result = r
	l.sink.Emit(ctx, event.AlertChanged(st.ref, old, r, v, now))
}

func (l *Loop) markDegraded(ctx context.Context, st *deviceState, err error, now time.Time) {
	st.fault = err.Error()
	st.updated = now
	if st.degraded {
		return
	}
	st.degraded = true
	l.sink.Emit(ctx, event.DeviceFault(st.ref, err, now))
}

func (l *Loop) markHealthy(ctx context.Context, st *deviceState, now time.Time) {
	st.updated = now
	if !st.degraded {
		return
	}
	st.degraded = false
	st.fault = ""
	l.sink.Emit(ctx, event.DeviceRecovered(st.ref, now))
}

// Status returns a snapshot of every monitored device in inventory order.
func (l *Loop) Status() []Snapshot {
	out := make([]Snapshot, 0, len(l.order))
	for _, ref := range l.order {
		out = append(out, l.states[ref].snapshot())
	}
	return out
}

func (l *Loop) publishStatus(ctx context.Context, now time.Time) {
	summary := make(map[string]alert.Indicator, len(l.order))
	indicators := make([]alert.Indicator, 0, len(l.order))
	for _, snap := range l.Status() {
		summary[snap.Device.String()] = snap.Indicator
		indicators = append(indicators, snap.Indicator)
	}
	l.sink.Emit(ctx, event.Status(alert.WorstIndicator(indicators...), summary, now))
}
