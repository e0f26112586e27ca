package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/joakim000/grow/internal/alert"
	"github.com/joakim000/grow/internal/device"
)

// SimConfig tunes the simulated physics. Rates are per second.
type SimConfig struct {
	InitialMoisture    float64
	InitialTemperature float64
	InitialTankLevel   float64

	DryRate   float64 // moisture lost by every Water station
	WaterRate float64 // moisture gained by the station under a running pump
	DrainRate float64 // tank percent lost while its pump runs

	AmbientLight float64
	LampLight    float64

	FanRPMLow  float64
	FanRPMHigh float64
}

// DefaultSimConfig returns a configuration that keeps a Water station
// inside its normal band for a few hours before it needs watering.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		InitialMoisture:    60,
		InitialTemperature: 22,
		InitialTankLevel:   80,
		DryRate:            0.002,
		WaterRate:          5,
		DrainRate:          0.5,
		AmbientLight:       40,
		LampLight:          900,
		FanRPMLow:          1200,
		FanRPMHigh:         2400,
	}
}

// Simulator is an in-process stand-in for the physical installation.
//
// State moves forward lazily: every call first advances the model by the
// time elapsed on the clock since the previous call. With a fake clock the
// simulation is fully deterministic.
type Simulator struct {
	registry *device.Registry
	cfg      SimConfig
	clock    clockwork.Clock

	mu       sync.Mutex
	last     time.Time
	moisture map[int]float64
	temp     map[int]float64
	fans     map[int]alert.FanMode
	lamps    map[int]bool
	tanks    map[int]float64
	pumps    map[int]bool
	arms     map[int]device.Position
	faults   map[device.Ref]error
}

// NewSimulator creates a simulator for every device in the registry.
func NewSimulator(registry *device.Registry, cfg SimConfig, clock clockwork.Clock) *Simulator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Simulator{
		registry: registry,
		cfg:      cfg,
		clock:    clock,
		last:     clock.Now(),
		moisture: make(map[int]float64),
		temp:     make(map[int]float64),
		fans:     make(map[int]alert.FanMode),
		lamps:    make(map[int]bool),
		tanks:    make(map[int]float64),
		pumps:    make(map[int]bool),
		arms:     make(map[int]device.Position),
		faults:   make(map[device.Ref]error),
	}
	for _, d := range registry.All(device.KindWater) {
		s.moisture[d.ID] = cfg.InitialMoisture
	}
	for _, d := range registry.All(device.KindAir) {
		s.temp[d.ID] = cfg.InitialTemperature
	}
	for _, d := range registry.All(device.KindTank) {
		s.tanks[d.ID] = cfg.InitialTankLevel
	}
	return s
}

// advance must be called with s.mu held.
func (s *Simulator) advance() {
	now := s.clock.Now()
	dt := now.Sub(s.last).Seconds()
	s.last = now
	if dt <= 0 {
		return
	}

	for _, d := range s.registry.All(device.KindWater) {
		w, _ := d.Water()
		m := s.moisture[d.ID] - s.cfg.DryRate*dt
		if s.pumps[w.PumpID] && s.arms[w.Position.ArmID] == w.Position {
			m += s.cfg.WaterRate * dt
		}
		s.moisture[d.ID] = clamp(m)
	}

	drained := make(map[int]bool)
	for _, d := range s.registry.All(device.KindWater) {
		w, _ := d.Water()
		if s.pumps[w.PumpID] && !drained[w.TankID] {
			s.tanks[w.TankID] = clamp(s.tanks[w.TankID] - s.cfg.DrainRate*dt)
			drained[w.TankID] = true
		}
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func (s *Simulator) fault(ref device.Ref) error {
	if err, ok := s.faults[ref]; ok {
		return err
	}
	if _, err := s.registry.Get(ref.Kind, ref.ID); err != nil {
		return err
	}
	return nil
}

// Read implements Hardware.
func (s *Simulator) Read(ctx context.Context, kind device.Kind, id int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ref := device.Ref{Kind: kind, ID: id}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()

	if err := s.fault(ref); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrSensorUnavailable, ref, err)
	}

	switch kind {
	case device.KindWater:
		return s.moisture[id], nil
	case device.KindAir:
		return s.temp[id], nil
	case device.KindLight:
		if s.lamps[id] {
			return s.cfg.LampLight, nil
		}
		return s.cfg.AmbientLight, nil
	case device.KindTank:
		return s.tanks[id], nil
	default:
		return 0, fmt.Errorf("%w: %s has no sensor", ErrSensorUnavailable, ref)
	}
}

// ReadFanRPM implements Hardware. A stopped fan reads 0.
func (s *Simulator) ReadFanRPM(ctx context.Context, airID int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ref := device.Ref{Kind: device.KindAir, ID: airID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fault(ref); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrSensorUnavailable, ref, err)
	}
	switch s.fans[airID] {
	case alert.FanHigh:
		return s.cfg.FanRPMHigh, nil
	case alert.FanLow:
		return s.cfg.FanRPMLow, nil
	default:
		return 0, nil
	}
}

func (s *Simulator) actuate(ctx context.Context, ref device.Ref, apply func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()

	if err := s.fault(ref); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrActuatorFault, ref, err)
	}
	apply()
	return nil
}

// MoveArm implements Hardware. Moves complete instantly.
func (s *Simulator) MoveArm(ctx context.Context, armID, x, y, z int) error {
	return s.actuate(ctx, device.Ref{Kind: device.KindArm, ID: armID}, func() {
		s.arms[armID] = device.Position{ArmID: armID, X: x, Y: y, Z: z}
	})
}

// SetPump implements Hardware.
func (s *Simulator) SetPump(ctx context.Context, pumpID int, on bool) error {
	return s.actuate(ctx, device.Ref{Kind: device.KindPump, ID: pumpID}, func() {
		s.pumps[pumpID] = on
	})
}

// SetLamp implements Hardware.
func (s *Simulator) SetLamp(ctx context.Context, lightID int, on bool) error {
	return s.actuate(ctx, device.Ref{Kind: device.KindLight, ID: lightID}, func() {
		s.lamps[lightID] = on
	})
}

// SetFan implements Hardware.
func (s *Simulator) SetFan(ctx context.Context, airID int, mode alert.FanMode) error {
	return s.actuate(ctx, device.Ref{Kind: device.KindAir, ID: airID}, func() {
		s.fans[airID] = mode
	})
}

// InjectFault makes every operation on ref fail with err until ClearFault.
func (s *Simulator) InjectFault(ref device.Ref, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[ref] = err
}

// ClearFault removes an injected fault.
func (s *Simulator) ClearFault(ref device.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.faults, ref)
}

// SetMoisture overrides a Water station's moisture.
func (s *Simulator) SetMoisture(waterID int, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.moisture[waterID] = clamp(v)
}

// SetTemperature overrides an Air station's temperature.
func (s *Simulator) SetTemperature(airID int, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.temp[airID] = v
}

// SetTankLevel overrides a tank's fill percentage.
func (s *Simulator) SetTankLevel(tankID int, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.tanks[tankID] = clamp(v)
}

// PumpOn reports whether a pump is running.
func (s *Simulator) PumpOn(pumpID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pumps[pumpID]
}

// LampOn reports whether a lamp is lit.
func (s *Simulator) LampOn(lightID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lamps[lightID]
}

// Fan returns an Air station's fan mode.
func (s *Simulator) Fan(airID int) alert.FanMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fans[airID]
}

// ArmPosition returns where an arm was last moved to.
func (s *Simulator) ArmPosition(armID int) (device.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.arms[armID]
	return p, ok
}
