package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/joakim000/grow/internal/alert"
)

// Logger defines the logging interface used by the sinks.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, Event) {}

// Fanout delivers each event to every sink in order.
type Fanout []Sink

// Emit implements Sink.
func (f Fanout) Emit(ctx context.Context, e Event) {
	for _, s := range f {
		s.Emit(ctx, e)
	}
}

// LogSink writes events to a structured logger. Readings are logged at
// debug level, faults and red alerts at warn, everything else at info.
type LogSink struct {
	logger Logger
}

// NewLogSink creates a sink that logs through logger.
func NewLogSink(logger Logger) *LogSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogSink{logger: logger}
}

// Emit implements Sink.
func (s *LogSink) Emit(_ context.Context, e Event) {
	args := []any{"device", e.Device.String()}
	switch e.Type {
	case TypeReading:
		s.logger.Debug("sensor reading", "device", e.Device.String(), "quantity", e.Quantity, "value", deref(e.Value))
		return
	case TypeAlertChanged:
		args = append(args, "old", e.Old, "new", e.New, "value", deref(e.Value))
		if e.Level == alert.RedAlert {
			s.logger.Warn("alert level changed", args...)
			return
		}
		s.logger.Info("alert level changed", args...)
	case TypeCycleOutcome:
		args = append(args, "cycle_id", e.CycleID, "outcome", e.Outcome, "duration", e.Duration)
		if e.Reason != "" {
			args = append(args, "reason", e.Reason)
		}
		if e.Outcome == OutcomeFailed {
			s.logger.Warn("watering cycle finished", args...)
			return
		}
		s.logger.Info("watering cycle finished", args...)
	case TypeDeviceFault:
		s.logger.Warn("device degraded", append(args, "reason", e.Reason)...)
	case TypeDeviceRecovered:
		s.logger.Info("device recovered", args...)
	case TypeStatus:
		s.logger.Debug("site status", "indicator", e.Indicator, "devices", len(e.Summary))
	default:
		s.logger.Info(string(e.Type), append(args, "old", e.Old, "new", e.New)...)
	}
}

func deref(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Recorder is an in-memory Sink that keeps every event. It is used by
// tests and by the status API to expose the latest events.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewRecorder creates a recorder keeping at most limit events (0 = unbounded).
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Emit implements Sink.
func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
}

// Events returns a copy of the recorded events, optionally filtered by type.
func (r *Recorder) Events(types ...Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if len(types) == 0 || contains(types, e.Type) {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func contains(types []Type, t Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// String is used in test failure messages.
func (e Event) String() string {
	return fmt.Sprintf("%s %s %s->%s %s", e.Type, e.Device, e.Old, e.New, e.Outcome)
}
