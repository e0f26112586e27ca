package device

import (
	"fmt"
	"time"
)

// Kind identifies a device variant.
type Kind string

// Device kinds, as spelled in the inventory resource.
const (
	KindAir   Kind = "Air"
	KindWater Kind = "Water"
	KindLight Kind = "Light"
	KindArm   Kind = "Arm"
	KindPump  Kind = "Pump"
	KindTank  Kind = "Tank"
	KindAux   Kind = "Aux"
)

// AllKinds returns every device kind in canonical order.
// The position of a kind in this list is its Order.
func AllKinds() []Kind {
	return []Kind{KindAir, KindWater, KindLight, KindArm, KindPump, KindTank, KindAux}
}

// ParseKind converts an inventory kind name to a Kind.
// Returns ErrUnknownDeviceKind for anything else. Matching is case-sensitive.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDeviceKind, s)
	}
	return k, nil
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k.Order() >= 0
}

// Order returns the position of k in AllKinds, or -1 for an unknown kind.
// Resource locks are taken in ascending Order, then ascending id.
func (k Kind) Order() int {
	for i, known := range AllKinds() {
		if k == known {
			return i
		}
	}
	return -1
}

// IsPassive reports whether devices of this kind carry no settings.
func (k Kind) IsPassive() bool {
	switch k {
	case KindArm, KindPump, KindTank, KindAux:
		return true
	default:
		return false
	}
}

// Ref addresses a device by kind and id. Ids are unique within a kind only,
// so Air#1 and Water#1 are distinct devices.
type Ref struct {
	Kind Kind `json:"kind"`
	ID   int  `json:"id"`
}

// String formats the reference as Kind#id.
func (r Ref) String() string {
	return fmt.Sprintf("%s#%d", r.Kind, r.ID)
}

// Device is one entry of the inventory: a tagged union over Kind whose
// Settings hold the variant-specific record.
//
// Devices are plain values without shared references, so copies handed out
// by the Registry cannot alias registry state.
type Device struct {
	Kind     Kind
	ID       int
	Settings Settings
}

// Ref returns the device's address.
func (d Device) Ref() Ref {
	return Ref{Kind: d.Kind, ID: d.ID}
}

// Air returns the Air settings, or false if d is not an Air device.
func (d Device) Air() (AirSettings, bool) {
	s, ok := d.Settings.(AirSettings)
	return s, ok
}

// Water returns the Water settings, or false if d is not a Water device.
func (d Device) Water() (WaterSettings, bool) {
	s, ok := d.Settings.(WaterSettings)
	return s, ok
}

// Light returns the Light settings, or false if d is not a Light device.
func (d Device) Light() (LightSettings, bool) {
	s, ok := d.Settings.(LightSettings)
	return s, ok
}

// Settings is implemented by the settings record of each variant.
// The set of implementations is closed.
type Settings interface {
	settingsKind() Kind
}

// AirSettings configures a temperature/fan station. Temperatures in °C.
type AirSettings struct {
	TempHighYellowWarning float64 `json:"temp_high_yellow_warning"`
	TempHighRedAlert      float64 `json:"temp_high_red_alert"`
	TempFanLow            float64 `json:"temp_fan_low"`
	TempFanHigh           float64 `json:"temp_fan_high"`
	FanRPMLowRedAlert     float64 `json:"fan_rpm_low_red_alert"`
}

func (AirSettings) settingsKind() Kind { return KindAir }

// WaterSettings configures a moisture station watered by the shared arm and pump.
// Moisture thresholds are percentages and strictly increasing in declaration order.
type WaterSettings struct {
	MoistureLowRedAlert       float64       `json:"moisture_low_red_alert"`
	MoistureLowYellowWarning  float64       `json:"moisture_low_yellow_warning"`
	MoistureLimitWater        float64       `json:"moisture_limit_water"`
	MoistureHighYellowWarning float64       `json:"moisture_high_yellow_warning"`
	MoistureHighRedAlert      float64       `json:"moisture_high_red_alert"`
	TankID                    int           `json:"tank_id"`
	PumpID                    int           `json:"pump_id"`
	PumpTime                  time.Duration `json:"pump_time"`
	SettlingTime              time.Duration `json:"settling_time"`
	Position                  Position      `json:"position"`
}

func (WaterSettings) settingsKind() Kind { return KindWater }

// Position is an arm target. ArmID is a weak reference resolved through the Registry.
type Position struct {
	ArmID int `json:"arm_id"`
	X     int `json:"x"`
	Y     int `json:"y"`
	Z     int `json:"z"`
}

// LightSettings configures the light station: illuminance floors and the daily lamp window.
type LightSettings struct {
	LightLevelLowYellowWarning float64   `json:"lightlevel_low_yellow_warning"`
	LightLevelLowRedAlert      float64   `json:"lightlevel_low_red_alert"`
	LampOn                     TimeOfDay `json:"lamp_on"`
	LampOff                    TimeOfDay `json:"lamp_off"`
}

func (LightSettings) settingsKind() Kind { return KindLight }

// Passive is the empty settings record of Arm, Pump, Tank and Aux devices.
type Passive struct{}

func (Passive) settingsKind() Kind { return "" }

// TimeOfDay is a wall-clock time within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
	Nano   int
}

// TimeOfDayOf extracts the wall-clock time of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nano: t.Nanosecond()}
}

// SinceMidnight returns the offset of the time from 00:00.
func (t TimeOfDay) SinceMidnight() time.Duration {
	return time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second +
		time.Duration(t.Nano)
}

// Before reports whether t is earlier in the day than u.
func (t TimeOfDay) Before(u TimeOfDay) bool {
	return t.SinceMidnight() < u.SinceMidnight()
}

// Valid reports whether every component is in range.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 &&
		t.Minute >= 0 && t.Minute < 60 &&
		t.Second >= 0 && t.Second < 60 &&
		t.Nano >= 0 && t.Nano < int(time.Second)
}

// String formats the time as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}
