package event

import (
	"context"
	"time"

	"github.com/joakim000/grow/internal/device"
)

// TelemetryWriter is the write side of the time-series store.
// *influxdb.Client implements it.
type TelemetryWriter interface {
	WriteReading(ref device.Ref, quantity string, value float64, at time.Time)
	WriteAlert(ref device.Ref, level, old, new string, value float64, at time.Time)
	WriteCycle(waterID int, outcome, reason string, reading float64, duration time.Duration, at time.Time)
}

// TelemetrySink forwards readings, alert transitions and cycle outcomes to
// a TelemetryWriter. Other events are ignored.
type TelemetrySink struct {
	w TelemetryWriter
}

// NewTelemetrySink creates a sink writing through w.
func NewTelemetrySink(w TelemetryWriter) *TelemetrySink {
	return &TelemetrySink{w: w}
}

// Emit implements Sink.
func (s *TelemetrySink) Emit(_ context.Context, e Event) {
	switch e.Type {
	case TypeReading:
		if e.Value != nil {
			s.w.WriteReading(e.Device, e.Quantity, *e.Value, e.Time)
		}
	case TypeAlertChanged:
		var v float64
		if e.Value != nil {
			v = *e.Value
		}
		s.w.WriteAlert(e.Device, e.Level.String(), e.Old, e.New, v, e.Time)
	case TypeCycleOutcome:
		var reading float64
		if e.Value != nil {
			reading = *e.Value
		}
		s.w.WriteCycle(e.Device.ID, e.Outcome, e.Reason, reading, e.Duration, e.Time)
	}
}
