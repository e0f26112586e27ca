package alert

import (
	"github.com/joakim000/grow/internal/device"
)

// FanMode is the commanded speed of an Air station's fan.
type FanMode int

// Fan modes.
const (
	FanOff FanMode = iota
	FanLow
	FanHigh
)

// String returns the mode name.
func (m FanMode) String() string {
	switch m {
	case FanLow:
		return "low"
	case FanHigh:
		return "high"
	default:
		return "off"
	}
}

// FanModeFor picks the fan mode for a temperature: above temp_fan_high runs
// High, above temp_fan_low runs Low, anything else is Off.
func FanModeFor(s device.AirSettings, temp float64) FanMode {
	switch {
	case temp > s.TempFanHigh:
		return FanHigh
	case temp > s.TempFanLow:
		return FanLow
	default:
		return FanOff
	}
}

// TankLevel classifies a water tank reading.
type TankLevel int

// Tank levels. NoData is used when the level sensor cannot be read.
const (
	TankNoData TankLevel = iota
	TankOK
	TankLow
	TankEmpty
	TankOverfill
)

// String returns the tank level name.
func (t TankLevel) String() string {
	switch t {
	case TankOK:
		return "ok"
	case TankLow:
		return "low"
	case TankEmpty:
		return "empty"
	case TankOverfill:
		return "overfill"
	default:
		return "no_data"
	}
}

// TankBands holds tank thresholds in percent, Empty < Low < Overfill.
type TankBands struct {
	Empty    float64
	Low      float64
	Overfill float64
}

// Classify maps a fill percentage to a TankLevel. Boundaries go to the more
// severe side: v <= Empty is Empty, v <= Low is Low, v >= Overfill is Overfill.
func (b TankBands) Classify(v float64) TankLevel {
	switch {
	case v <= b.Empty:
		return TankEmpty
	case v <= b.Low:
		return TankLow
	case v >= b.Overfill:
		return TankOverfill
	default:
		return TankOK
	}
}

// Result maps a tank level onto the common alert scale.
func (t TankLevel) Result() Result {
	switch t {
	case TankLow:
		return YellowLow
	case TankEmpty:
		return RedLow
	case TankOverfill:
		return RedHigh
	default:
		return OK
	}
}

// Indicator is the display colour of a device or of the whole site.
type Indicator string

// Indicator colours. Blue means no usable data.
const (
	Green  Indicator = "green"
	Yellow Indicator = "yellow"
	Red    Indicator = "red"
	Blue   Indicator = "blue"
)

// IndicatorFor returns the colour for a result. Degraded devices are Blue.
func IndicatorFor(r Result, degraded bool) Indicator {
	if degraded {
		return Blue
	}
	switch r.Level {
	case RedAlert:
		return Red
	case YellowWarning:
		return Yellow
	default:
		return Green
	}
}

// severity orders indicators for WorstIndicator: Red > Blue > Yellow > Green.
func (i Indicator) severity() int {
	switch i {
	case Red:
		return 3
	case Blue:
		return 2
	case Yellow:
		return 1
	default:
		return 0
	}
}

// WorstIndicator returns the most severe colour, Green for none.
func WorstIndicator(indicators ...Indicator) Indicator {
	worst := Green
	for _, i := range indicators {
		if i.severity() > worst.severity() {
			worst = i
		}
	}
	return worst
}
