package alert

import (
	"math"

	"github.com/joakim000/grow/internal/device"
)

// Band is a two-sided threshold set with RedLow < YellowLow < YellowHigh < RedHigh.
// An unused side is disabled by setting its thresholds to -Inf (low) or +Inf (high).
type Band struct {
	RedLow     float64
	YellowLow  float64
	YellowHigh float64
	RedHigh    float64
}

// Evaluate classifies v. Boundaries are inclusive toward the more severe side:
//
//	v <= RedLow              RedAlert(low)
//	RedLow < v <= YellowLow  YellowWarning(low)
//	YellowLow < v < YellowHigh  Normal
//	YellowHigh <= v < RedHigh   YellowWarning(high)
//	v >= RedHigh             RedAlert(high)
func (b Band) Evaluate(v float64) Result {
	switch {
	case v <= b.RedLow:
		return RedLow
	case v <= b.YellowLow:
		return YellowLow
	case v >= b.RedHigh:
		return RedHigh
	case v >= b.YellowHigh:
		return YellowHigh
	default:
		return OK
	}
}

// Floor is a one-sided low threshold set with Red < Yellow. Unlike Band,
// a reading equal to a threshold is on the less severe side.
type Floor struct {
	Yellow float64
	Red    float64
}

// Evaluate classifies v: v < Red is RedAlert(low), Red <= v < Yellow is
// YellowWarning(low), anything else Normal.
func (f Floor) Evaluate(v float64) Result {
	switch {
	case v < f.Red:
		return RedLow
	case v < f.Yellow:
		return YellowLow
	default:
		return OK
	}
}

// MoistureBand returns the two-sided moisture band of a Water device.
func MoistureBand(s device.WaterSettings) Band {
	return Band{
		RedLow:     s.MoistureLowRedAlert,
		YellowLow:  s.MoistureLowYellowWarning,
		YellowHigh: s.MoistureHighYellowWarning,
		RedHigh:    s.MoistureHighRedAlert,
	}
}

// TemperatureBand returns the high-side temperature band of an Air device.
func TemperatureBand(s device.AirSettings) Band {
	return Band{
		RedLow:     math.Inf(-1),
		YellowLow:  math.Inf(-1),
		YellowHigh: s.TempHighYellowWarning,
		RedHigh:    s.TempHighRedAlert,
	}
}

// LightFloor returns the illuminance floor of a Light device.
func LightFloor(s device.LightSettings) Floor {
	return Floor{Yellow: s.LightLevelLowYellowWarning, Red: s.LightLevelLowRedAlert}
}

// Moisture evaluates a Water reading.
func Moisture(s device.WaterSettings, v float64) Result {
	return MoistureBand(s).Evaluate(v)
}

// Temperature evaluates an Air temperature reading.
func Temperature(s device.AirSettings, v float64) Result {
	return TemperatureBand(s).Evaluate(v)
}

// FanRPM evaluates a fan speed against the Air device's RPM floor.
// There is no yellow tier.
func FanRPM(s device.AirSettings, rpm float64) Result {
	if rpm < s.FanRPMLowRedAlert {
		return RedLow
	}
	return OK
}

// LightLevel evaluates an illuminance reading.
func LightLevel(s device.LightSettings, v float64) Result {
	return LightFloor(s).Evaluate(v)
}

// WateringEligible reports whether a Water reading is at or below the low
// yellow threshold, which makes the device a candidate for a watering cycle.
func WateringEligible(s device.WaterSettings, v float64) bool {
	return v <= s.MoistureLowYellowWarning
}

// Evaluator applies optional hysteresis to successive results of one device.
// The zero value is stateless: every result is the raw evaluation.
type Evaluator struct {
	// Hysteresis is the de-escalation margin in sensor units.
	Hysteresis float64
}

// Next returns the result for reading v given the previously reported result.
//
// eval is the raw classification (for example Band.Evaluate). When the raw
// result is less severe than prev, the reading is shifted by the margin toward
// prev's side and re-evaluated; the held result is the more severe of the
// two, never more severe than prev.
func (e Evaluator) Next(prev Result, v float64, eval func(float64) Result) Result {
	raw := eval(v)
	if e.Hysteresis <= 0 || !prev.MoreSevere(raw) {
		return raw
	}

	var shifted float64
	switch prev.Side {
	case SideLow:
		shifted = v - e.Hysteresis
	case SideHigh:
		shifted = v + e.Hysteresis
	default:
		return raw
	}

	held := eval(shifted)
	if held.MoreSevere(prev) {
		return prev
	}
	if held.MoreSevere(raw) {
		return held
	}
	return raw
}
