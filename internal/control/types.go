package control

import (
	"context"
	"time"

	"github.com/joakim000/grow/internal/alert"
	"github.com/joakim000/grow/internal/device"
	"github.com/joakim000/grow/internal/light"
)

// Sensor reads the primary value of a device.
// Errors should wrap hardware.ErrSensorUnavailable.
type Sensor interface {
	Read(ctx context.Context, kind device.Kind, id int) (float64, error)
}

// FanRPMReader is an optional Sensor capability.
type FanRPMReader interface {
	ReadFanRPM(ctx context.Context, airID int) (float64, error)
}

// FanDriver switches Air station fans.
type FanDriver interface {
	SetFan(ctx context.Context, airID int, mode alert.FanMode) error
}

// Irrigator queues watering cycles. *irrigation.Dispatcher implements it.
type Irrigator interface {
	Submit(waterID int, reading float64) bool
}

// Lights runs lamp schedules. *light.Scheduler implements it.
type Lights interface {
	Apply(ctx context.Context, lightID int, now time.Time, level float64) (light.Decision, error)
	Schedule(ctx context.Context, lightID int, now time.Time) (light.Decision, error)
}

// Logger defines the logging interface used by the loop.
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

// Snapshot is the last known state of one device.
type Snapshot struct {
	Device    device.Ref      `json:"device"`
	Level     string          `json:"level"`
	Indicator alert.Indicator `json:"indicator"`
	Value     *float64        `json:"value,omitempty"`
	FanRPM    *float64        `json:"fan_rpm,omitempty"`
	FanMode   string          `json:"fan_mode,omitempty"`
	LampOn    *bool           `json:"lamp_on,omitempty"`
	TankLevel string          `json:"tank_level,omitempty"`
	Degraded  bool            `json:"degraded"`
	Fault     string          `json:"fault,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}
