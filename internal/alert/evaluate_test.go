package alert

import (
	"testing"
	"time"

	"github.com/joakim000/grow/internal/device"
)

func testWater() device.WaterSettings {
	return device.WaterSettings{
		MoistureLowRedAlert:       20,
		MoistureLowYellowWarning:  30,
		MoistureLimitWater:        50,
		MoistureHighYellowWarning: 90,
		MoistureHighRedAlert:      100,
		PumpTime:                  2 * time.Second,
		SettlingTime:              time.Minute,
	}
}

func TestMoisture_Boundaries(t *testing.T) {
	s := testWater()

	tests := []struct {
		value float64
		want  Result
	}{
		{0, RedLow},
		{19.99, RedLow},
		{20, RedLow},
		{20.01, YellowLow},
		{29.99, YellowLow},
		{30, YellowLow},
		{30.01, OK},
		{50, OK},
		{89.99, OK},
		{90, YellowHigh},
		{99.99, YellowHigh},
		{100, RedHigh},
		{120, RedHigh},
	}

	for _, tt := range tests {
		if got := Moisture(s, tt.value); got != tt.want {
			t.Errorf("Moisture(%v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestTemperature(t *testing.T) {
	s := device.AirSettings{TempHighYellowWarning: 35, TempHighRedAlert: 40, TempFanLow: 25, TempFanHigh: 30, FanRPMLowRedAlert: 10}

	tests := []struct {
		value float64
		want  Result
	}{
		{-40, OK},
		{34.9, OK},
		{35, YellowHigh},
		{39.9, YellowHigh},
		{40, RedHigh},
	}
	for _, tt := range tests {
		if got := Temperature(s, tt.value); got != tt.want {
			t.Errorf("Temperature(%v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestFanRPM(t *testing.T) {
	s := device.AirSettings{FanRPMLowRedAlert: 10}

	if got := FanRPM(s, 9.9); got != RedLow {
		t.Errorf("FanRPM(9.9) = %v, want %v", got, RedLow)
	}
	if got := FanRPM(s, 10); got != OK {
		t.Errorf("FanRPM(10) = %v, want %v", got, OK)
	}
}

func TestLightLevel(t *testing.T) {
	s := device.LightSettings{LightLevelLowYellowWarning: 100, LightLevelLowRedAlert: 80}

	tests := []struct {
		value float64
		want  Result
	}{
		{0, RedLow},
		{79.9, RedLow},
		{80, YellowLow},
		{99.9, YellowLow},
		{100, OK},
		{5000, OK},
	}
	for _, tt := range tests {
		if got := LightLevel(s, tt.value); got != tt.want {
			t.Errorf("LightLevel(%v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestWateringEligible(t *testing.T) {
	s := testWater()

	if !WateringEligible(s, 25) {
		t.Error("WateringEligible(25) = false, want true")
	}
	if !WateringEligible(s, 30) {
		t.Error("WateringEligible(30) = false, want true (boundary)")
	}
	if WateringEligible(s, 30.5) {
		t.Error("WateringEligible(30.5) = true, want false")
	}
}

func TestWorst(t *testing.T) {
	if got := Worst(); got != OK {
		t.Errorf("Worst() = %v, want %v", got, OK)
	}
	if got := Worst(YellowHigh, RedLow, YellowLow); got != RedLow {
		t.Errorf("Worst() = %v, want %v", got, RedLow)
	}
	if got := Worst(YellowHigh, YellowLow); got != YellowHigh {
		t.Errorf("Worst() tie = %v, want first (%v)", got, YellowHigh)
	}
}

func TestResult_String(t *testing.T) {
	if got := RedLow.String(); got != "red_alert(low)" {
		t.Errorf("String() = %q, want %q", got, "red_alert(low)")
	}
	if got := OK.String(); got != "normal" {
		t.Errorf("String() = %q, want %q", got, "normal")
	}
}

func TestEvaluator_Stateless(t *testing.T) {
	var e Evaluator
	band := MoistureBand(testWater())

	// Without hysteresis a reading just above the boundary de-escalates at once.
	if got := e.Next(YellowLow, 30.01, band.Evaluate); got != OK {
		t.Errorf("Next() = %v, want %v", got, OK)
	}
}

func TestEvaluator_Hysteresis(t *testing.T) {
	e := Evaluator{Hysteresis: 2}
	band := MoistureBand(testWater())

	tests := []struct {
		name  string
		prev  Result
		value float64
		want  Result
	}{
		{"holds yellow low inside margin", YellowLow, 31, YellowLow},
		{"releases yellow low past margin", YellowLow, 32.5, OK},
		{"red low steps down to yellow", RedLow, 25, YellowLow},
		{"red low held inside margin", RedLow, 21, RedLow},
		{"holds yellow high inside margin", YellowHigh, 89, YellowHigh},
		{"releases yellow high past margin", YellowHigh, 87, OK},
		{"escalation is immediate", OK, 30, YellowLow},
		{"escalation past held level", YellowLow, 15, RedLow},
		{"never exceeds previous level", YellowLow, 30.5, YellowLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Next(tt.prev, tt.value, band.Evaluate); got != tt.want {
				t.Errorf("Next(%v, %v) = %v, want %v", tt.prev, tt.value, got, tt.want)
			}
		})
	}

	t.Run("large margin capped at previous level", func(t *testing.T) {
		wide := Evaluator{Hysteresis: 15}
		// 31 - 15 = 16 would read as red, but the held level cannot rise.
		if got := wide.Next(YellowLow, 31, band.Evaluate); got != YellowLow {
			t.Errorf("Next() = %v, want %v", got, YellowLow)
		}
	})
}
