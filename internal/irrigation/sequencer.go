package irrigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/joakim000/grow/internal/actuator"
	"github.com/joakim000/grow/internal/device"
	"github.com/joakim000/grow/internal/event"
)

// pumpOffRetries is how many times a failed pump-off command is repeated.
const pumpOffRetries = 3

// Deps holds the collaborators of a Sequencer.
type Deps struct {
	Registry *device.Registry
	Locks    *actuator.Locks
	Driver   Driver

	// Clock drives the settling and pumping waits. Defaults to the real clock.
	Clock clockwork.Clock

	// Sink receives one cycle_outcome event per Run. Defaults to event.Discard.
	Sink event.Sink

	Logger Logger

	// PumpOffBackOff returns the retry policy for a failing pump-off
	// command. Defaults to exponential backoff from 500ms.
	PumpOffBackOff func() backoff.BackOff
}

// Sequencer runs watering cycles: move the arm over a Water station, let it
// settle, run the pump, let the water soak in.
//
// Thread Safety:
//   - Run is safe for concurrent use. Cycles that share an arm, pump or
//     tank are serialised by the actuator locks; disjoint cycles overlap.
type Sequencer struct {
	registry *device.Registry
	locks    *actuator.Locks
	driver   Driver
	clock    clockwork.Clock
	sink     event.Sink
	logger   Logger
	offRetry func() backoff.BackOff
}

// New creates a Sequencer.
//
// Returns:
//   - error: when Registry, Locks or Driver is missing
func New(deps Deps) (*Sequencer, error) {
	if deps.Registry == nil || deps.Locks == nil || deps.Driver == nil {
		return nil, fmt.Errorf("irrigation: registry, locks and driver are required")
	}
	s := &Sequencer{
		registry: deps.Registry,
		locks:    deps.Locks,
		driver:   deps.Driver,
		clock:    deps.Clock,
		sink:     deps.Sink,
		logger:   deps.Logger,
		offRetry: deps.PumpOffBackOff,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.sink == nil {
		s.sink = event.Discard
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.offRetry == nil {
		s.offRetry = defaultPumpOffBackOff
	}
	return s, nil
}

func defaultPumpOffBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Run executes one watering cycle for a Water station and blocks until it
// ends. A reading at or above the station's moisture_limit_water skips the
// cycle without touching any actuator.
//
// Parameters:
//   - ctx: Cancelling ctx aborts the cycle; the pump is still switched off
//   - waterID: Water station to irrigate
//   - reading: The moisture reading that triggered the cycle
//
// Returns:
//   - Report: Outcome, failure reason and visited states
func (s *Sequencer) Run(ctx context.Context, waterID int, reading float64) Report {
	return s.run(ctx, uuid.NewString(), waterID, reading, nil)
}

// cycle carries the state of one Run.
type cycle struct {
	report  Report
	observe func(State)
}

func (c *cycle) enter(st State) {
	c.report.States = append(c.report.States, st)
	if c.observe != nil {
		c.observe(st)
	}
}

func (s *Sequencer) run(ctx context.Context, cycleID string, waterID int, reading float64, observe func(State)) Report {
	c := &cycle{
		report: Report{
			CycleID:   cycleID,
			WaterID:   waterID,
			Reading:   reading,
			StartedAt: s.clock.Now(),
		},
		observe: observe,
	}

	err := s.execute(ctx, c)

	switch {
	case err == nil && c.report.Outcome == OutcomeSkipped:
		c.enter(StateIdle)
	case err == nil:
		c.report.Outcome = OutcomeCompleted
		c.enter(StateIdle)
	default:
		c.report.Outcome = OutcomeFailed
		c.report.Reason = err
		c.enter(StateFailed)
	}
	c.report.EndedAt = s.clock.Now()

	s.finish(ctx, c.report)
	return c.report
}

func (s *Sequencer) execute(ctx context.Context, c *cycle) error {
	w, err := s.registry.Water(c.report.WaterID)
	if err != nil {
		return err
	}
	if c.report.Reading >= w.MoistureLimitWater {
		c.report.Outcome = OutcomeSkipped
		return nil
	}

	log := s.logger
	waterRef := device.Ref{Kind: device.KindWater, ID: c.report.WaterID}
	log.Info("watering cycle started",
		"cycle_id", c.report.CycleID,
		"device", waterRef.String(),
		"reading", c.report.Reading,
	)

	c.enter(StateAcquiring)
	owner := actuator.NewOwner(fmt.Sprintf("cycle %s %s", c.report.CycleID, waterRef))
	guard, err := s.locks.Acquire(ctx, owner,
		device.Ref{Kind: device.KindArm, ID: w.Position.ArmID},
		device.Ref{Kind: device.KindPump, ID: w.PumpID},
		device.Ref{Kind: device.KindTank, ID: w.TankID},
	)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		return err
	}
	defer guard.Release()

	c.enter(StatePositioning)
	p := w.Position
	if err := s.driver.MoveArm(ctx, p.ArmID, p.X, p.Y, p.Z); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: moving arm: %w", ErrCancelled, err)
		}
		return fmt.Errorf("moving arm %d to (%d,%d,%d): %w", p.ArmID, p.X, p.Y, p.Z, err)
	}

	c.enter(StateSettlingPre)
	if err := s.wait(ctx, w.SettlingTime); err != nil {
		return err
	}

	c.enter(StatePumping)
	if err := s.pump(ctx, c, w); err != nil {
		return err
	}

	c.enter(StateSettlingPost)
	return s.wait(ctx, w.SettlingTime)
}

// pump switches the pump on for pump_time. The off command is sent exactly
// once on every path out of this function, on a context that ignores
// cancellation.
func (s *Sequencer) pump(ctx context.Context, c *cycle, w device.WaterSettings) (err error) {
	defer func() {
		if offErr := s.pumpOff(context.WithoutCancel(ctx), c, w.PumpID); offErr != nil {
			err = errors.Join(err, offErr)
		}
	}()

	if err := s.driver.SetPump(ctx, w.PumpID, true); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: starting pump: %w", ErrCancelled, err)
		}
		return fmt.Errorf("starting pump %d: %w", w.PumpID, err)
	}
	return s.wait(ctx, w.PumpTime)
}

func (s *Sequencer) pumpOff(ctx context.Context, c *cycle, pumpID int) error {
	attempt := 0
	op := func() error {
		attempt++
		return s.driver.SetPump(ctx, pumpID, false)
	}
	notify := func(err error, next time.Duration) {
		s.logger.Warn("pump off failed, retrying",
			"cycle_id", c.report.CycleID,
			"pump_id", pumpID,
			"attempt", attempt,
			"retry_in", next,
			"error", err,
		)
	}

	err := backoff.RetryNotify(op, backoff.WithMaxRetries(s.offRetry(), pumpOffRetries), notify)
	if err != nil {
		s.logger.Error("pump off failed",
			"cycle_id", c.report.CycleID,
			"pump_id", pumpID,
			"attempts", attempt,
			"error", err,
		)
		return fmt.Errorf("stopping pump %d after %d attempts: %w", pumpID, attempt, err)
	}
	return nil
}

// wait blocks for d on the sequencer clock or until ctx is cancelled.
func (s *Sequencer) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		return nil
	}
	t := s.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.Chan():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
}

func (s *Sequencer) finish(ctx context.Context, r Report) {
	ref := device.Ref{Kind: device.KindWater, ID: r.WaterID}
	reason := ""
	if r.Reason != nil {
		reason = r.Reason.Error()
	}

	switch r.Outcome {
	case OutcomeFailed:
		s.logger.Warn("watering cycle failed",
			"cycle_id", r.CycleID,
			"device", ref.String(),
			"states", r.States,
			"error", r.Reason,
		)
	case OutcomeSkipped:
		s.logger.Debug("watering cycle skipped",
			"cycle_id", r.CycleID,
			"device", ref.String(),
			"reading", r.Reading,
		)
	default:
		s.logger.Info("watering cycle completed",
			"cycle_id", r.CycleID,
			"device", ref.String(),
			"duration", r.Duration(),
		)
	}

	s.sink.Emit(context.WithoutCancel(ctx), event.CycleOutcome(
		r.WaterID, r.CycleID, string(r.Outcome), reason, r.Reading, r.Duration(), r.EndedAt,
	))
}
