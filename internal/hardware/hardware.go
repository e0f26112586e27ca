package hardware

import (
	"context"

	"github.com/joakim000/grow/internal/alert"
	"github.com/joakim000/grow/internal/device"
)

// Quantity names the physical value a sensor reports, used in events and telemetry.
func Quantity(kind device.Kind) string {
	switch kind {
	case device.KindAir:
		return "temperature"
	case device.KindWater:
		return "moisture"
	case device.KindLight:
		return "light_level"
	case device.KindTank:
		return "tank_level"
	default:
		return "value"
	}
}

// Hardware is everything the controller needs from the physical installation.
// MQTTBridge and Simulator implement it.
type Hardware interface {
	// Read returns the current primary value of a device (see Quantity).
	Read(ctx context.Context, kind device.Kind, id int) (float64, error)

	// ReadFanRPM returns the fan speed of an Air station.
	ReadFanRPM(ctx context.Context, airID int) (float64, error)

	MoveArm(ctx context.Context, armID, x, y, z int) error
	SetPump(ctx context.Context, pumpID int, on bool) error
	SetLamp(ctx context.Context, lightID int, on bool) error
	SetFan(ctx context.Context, airID int, mode alert.FanMode) error
}
