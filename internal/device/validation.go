package device

import (
	"fmt"
)

// ValidateDevice checks a single device in isolation: a known kind, a
// settings record matching that kind, and the ordering and range rules of
// the variant. Cross-device references are checked by New.
//
// Parameters:
//   - d: The device to validate
//
// Returns:
//   - error: ErrUnknownDeviceKind, ErrInvariantViolation or ErrMissingSetting (wrapped), or nil
func ValidateDevice(d Device) error {
	if !d.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownDeviceKind, d.Kind)
	}
	if d.Settings == nil {
		return fmt.Errorf("%s: %w: settings", d.Ref(), ErrMissingSetting)
	}

	switch s := d.Settings.(type) {
	case AirSettings:
		if d.Kind != KindAir {
			return mismatch(d)
		}
		return validateAir(d.Ref(), s)
	case WaterSettings:
		if d.Kind != KindWater {
			return mismatch(d)
		}
		return validateWater(d.Ref(), s)
	case LightSettings:
		if d.Kind != KindLight {
			return mismatch(d)
		}
		return validateLight(d.Ref(), s)
	case Passive:
		if !d.Kind.IsPassive() {
			return mismatch(d)
		}
		return nil
	default:
		return mismatch(d)
	}
}

func mismatch(d Device) error {
	return fmt.Errorf("%s: %w: settings of type %T", d.Ref(), ErrInvariantViolation, d.Settings)
}

func validateAir(ref Ref, s AirSettings) error {
	if s.TempHighYellowWarning >= s.TempHighRedAlert {
		return fmt.Errorf("%s: %w: temp_high_yellow_warning (%g) must be below temp_high_red_alert (%g)",
			ref, ErrInvariantViolation, s.TempHighYellowWarning, s.TempHighRedAlert)
	}
	if s.TempFanLow > s.TempFanHigh {
		return fmt.Errorf("%s: %w: temp_fan_low (%g) must not exceed temp_fan_high (%g)",
			ref, ErrInvariantViolation, s.TempFanLow, s.TempFanHigh)
	}
	if s.FanRPMLowRedAlert < 0 {
		return fmt.Errorf("%s: %w: fan_rpm_low_red_alert must not be negative", ref, ErrInvariantViolation)
	}
	return nil
}

// validateWater enforces red_low < yellow_low < limit_water < yellow_high < red_high.
func validateWater(ref Ref, s WaterSettings) error {
	order := []struct {
		name  string
		value float64
	}{
		{"moisture_low_red_alert", s.MoistureLowRedAlert},
		{"moisture_low_yellow_warning", s.MoistureLowYellowWarning},
		{"moisture_limit_water", s.MoistureLimitWater},
		{"moisture_high_yellow_warning", s.MoistureHighYellowWarning},
		{"moisture_high_red_alert", s.MoistureHighRedAlert},
	}
	for i := 1; i < len(order); i++ {
		if order[i-1].value >= order[i].value {
			return fmt.Errorf("%s: %w: %s (%g) must be below %s (%g)",
				ref, ErrInvariantViolation,
				order[i-1].name, order[i-1].value, order[i].name, order[i].value)
		}
	}

	if s.PumpTime <= 0 {
		return fmt.Errorf("%s: %w: pump_time must be positive", ref, ErrInvariantViolation)
	}
	if s.SettlingTime < 0 {
		return fmt.Errorf("%s: %w: settling_time must not be negative", ref, ErrInvariantViolation)
	}
	return nil
}

func validateLight(ref Ref, s LightSettings) error {
	if s.LightLevelLowYellowWarning <= s.LightLevelLowRedAlert {
		return fmt.Errorf("%s: %w: lightlevel_low_yellow_warning (%g) must be above lightlevel_low_red_alert (%g)",
			ref, ErrInvariantViolation, s.LightLevelLowYellowWarning, s.LightLevelLowRedAlert)
	}
	if !s.LampOn.Valid() {
		return fmt.Errorf("%s: %w: lamp_on %v out of range", ref, ErrInvariantViolation, s.LampOn)
	}
	if !s.LampOff.Valid() {
		return fmt.Errorf("%s: %w: lamp_off %v out of range", ref, ErrInvariantViolation, s.LampOff)
	}
	return nil
}
