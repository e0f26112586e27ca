package irrigation

import (
	"context"
	"time"
)

// State is a phase of a watering cycle.
type State string

// Cycle states in execution order. Failed is reachable from every state
// except Idle; Queued is only reported by the Dispatcher.
const (
	StateQueued       State = "queued"
	StateIdle         State = "idle"
	StateAcquiring    State = "acquiring_resources"
	StatePositioning  State = "positioning"
	StateSettlingPre  State = "settling_pre"
	StatePumping      State = "pumping"
	StateSettlingPost State = "settling_post"
	StateFailed       State = "failed"
)

// Outcome is the result of a watering cycle.
type Outcome string

// Cycle outcomes.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Report describes one finished cycle.
type Report struct {
	CycleID   string
	WaterID   int
	Reading   float64
	Outcome   Outcome
	Reason    error
	States    []State
	StartedAt time.Time
	EndedAt   time.Time
}

// Duration returns how long the cycle took.
func (r Report) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Driver is the actuator surface a watering cycle needs.
// Errors should wrap hardware.ErrActuatorFault.
type Driver interface {
	MoveArm(ctx context.Context, armID, x, y, z int) error
	SetPump(ctx context.Context, pumpID int, on bool) error
}

// Logger defines the logging interface used by the sequencer and dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
