package control

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/joakim000/grow/internal/alert"
	"github.com/joakim000/grow/internal/device"
)

type deviceState struct {
	ref     device.Ref
	breaker *gobreaker.CircuitBreaker

	mu sync.Mutex

	// held is the hysteresis state of the primary quantity; result is the
	// reported level, which for Air also folds in the fan RPM check.
	held   alert.Result
	result alert.Result

	value    *float64
	rpm      *float64
	fan      alert.FanMode
	fanKnown bool
	lampOn   *bool
	tank     alert.TankLevel
	degraded bool
	fault    string
	updated  time.Time

	// actuatorFault is the last watering cycle failure on a Water station;
	// no cycle is submitted before holdUntil.
	actuatorFault error
	holdUntil     time.Time
}

func (s *deviceState) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Device:    s.ref,
		Level:     s.result.String(),
		Indicator: alert.IndicatorFor(s.result, s.degraded),
		Value:     copyFloat(s.value),
		FanRPM:    copyFloat(s.rpm),
		Degraded:  s.degraded,
		Fault:     s.fault,
		UpdatedAt: s.updated,
	}
	if s.fanKnown {
		snap.FanMode = s.fan.String()
	}
	if s.lampOn != nil {
		on := *s.lampOn
		snap.LampOn = &on
	}
	if s.ref.Kind == device.KindTank {
		snap.TankLevel = s.tank.String()
		if s.tank == alert.TankNoData {
			snap.Indicator = alert.Blue
		}
	}
	if s.updated.IsZero() {
		// Not polled yet.
		snap.Indicator = alert.Blue
	}
	return snap
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
