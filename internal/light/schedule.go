package light

import (
	"github.com/joakim000/grow/internal/alert"
	"github.com/joakim000/grow/internal/device"
)

// LampOn reports whether the lamp should be lit at time of day t for the
// daily window [on, off).
//
// A window with on after off wraps midnight. A window with on equal to off
// is empty and the lamp is never lit.
func LampOn(t, on, off device.TimeOfDay) bool {
	ts, ons, offs := t.SinceMidnight(), on.SinceMidnight(), off.SinceMidnight()
	switch {
	case ons < offs:
		return ons <= ts && ts < offs
	case ons > offs:
		return ts >= ons || ts < offs
	default:
		return false
	}
}

// Evaluate classifies a light level. Outside the lamp window darkness is
// expected and always evaluates to Normal.
func Evaluate(s device.LightSettings, lampOn bool, level float64) alert.Result {
	if !lampOn {
		return alert.OK
	}
	return alert.LightLevel(s, level)
}
