package event

import (
	"context"
	"time"

	"github.com/joakim000/grow/internal/alert"
	"github.com/joakim000/grow/internal/device"
)

// Type identifies what happened.
type Type string

// Event types.
const (
	TypeAlertChanged    Type = "alert_changed"
	TypeCycleOutcome    Type = "cycle_outcome"
	TypeDeviceFault     Type = "device_fault"
	TypeDeviceRecovered Type = "device_recovered"
	TypeFanMode         Type = "fan_mode_changed"
	TypeLamp            Type = "lamp_changed"
	TypeTankLevel       Type = "tank_level_changed"
	TypeReading         Type = "reading"
	TypeStatus          Type = "status"
)

// Cycle outcomes as carried in TypeCycleOutcome events.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Event is a single observation handed to the observability sinks.
//
// Which optional fields are set depends on Type:
//
//	alert_changed       Old, New, Level, Value, Indicator
//	cycle_outcome       CycleID, Outcome, Reason, Value (triggering reading), Duration
//	device_fault        Reason
//	device_recovered    (none)
//	fan_mode_changed    Old, New
//	lamp_changed        Old, New ("on"/"off")
//	tank_level_changed  Old, New, Value
//	reading             Quantity, Value
//	status              Indicator, Summary (Device is zero)
type Event struct {
	Type      Type                       `json:"type"`
	Device    device.Ref                 `json:"device"`
	Time      time.Time                  `json:"time"`
	Old       string                     `json:"old,omitempty"`
	New       string                     `json:"new,omitempty"`
	Level     alert.Level                `json:"level,omitempty"`
	Value     *float64                   `json:"value,omitempty"`
	Quantity  string                     `json:"quantity,omitempty"`
	CycleID   string                     `json:"cycle_id,omitempty"`
	Outcome   string                     `json:"outcome,omitempty"`
	Reason    string                     `json:"reason,omitempty"`
	Duration  time.Duration              `json:"duration_ns,omitempty"`
	Indicator alert.Indicator            `json:"indicator,omitempty"`
	Summary   map[string]alert.Indicator `json:"summary,omitempty"`
}

// Sink receives events. Emit must not block for long and must be safe for
// concurrent use; sinks report their own delivery errors.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

func ptr(v float64) *float64 { return &v }

// AlertChanged builds an alert-level change event.
func AlertChanged(ref device.Ref, old, new alert.Result, value float64, at time.Time) Event {
	return Event{
		Type:      TypeAlertChanged,
		Device:    ref,
		Time:      at,
		Old:       old.String(),
		New:       new.String(),
		Level:     new.Level,
		Value:     ptr(value),
		Indicator: alert.IndicatorFor(new, false),
	}
}

// CycleOutcome builds a watering cycle outcome event.
func CycleOutcome(waterID int, cycleID, outcome, reason string, reading float64, duration time.Duration, at time.Time) Event {
	return Event{
		Type:     TypeCycleOutcome,
		Device:   device.Ref{Kind: device.KindWater, ID: waterID},
		Time:     at,
		CycleID:  cycleID,
		Outcome:  outcome,
		Reason:   reason,
		Value:    ptr(reading),
		Duration: duration,
	}
}

// DeviceFault builds an event for a device entering the degraded state.
func DeviceFault(ref device.Ref, err error, at time.Time) Event {
	return Event{Type: TypeDeviceFault, Device: ref, Time: at, Reason: err.Error(), Indicator: alert.Blue}
}

// DeviceRecovered builds an event for a degraded device reading successfully again.
func DeviceRecovered(ref device.Ref, at time.Time) Event {
	return Event{Type: TypeDeviceRecovered, Device: ref, Time: at}
}

// Changed builds a fan, lamp or tank state change event.
func Changed(typ Type, ref device.Ref, old, new string, at time.Time) Event {
	return Event{Type: typ, Device: ref, Time: at, Old: old, New: new}
}

// Reading builds a raw sensor sample event.
func Reading(ref device.Ref, quantity string, value float64, at time.Time) Event {
	return Event{Type: TypeReading, Device: ref, Time: at, Quantity: quantity, Value: ptr(value)}
}

// Status builds a site status event.
func Status(indicator alert.Indicator, summary map[string]alert.Indicator, at time.Time) Event {
	return Event{Type: TypeStatus, Time: at, Indicator: indicator, Summary: summary}
}
