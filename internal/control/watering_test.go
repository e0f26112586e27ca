package control

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/joakim000/grow/internal/actuator"
	"github.com/joakim000/grow/internal/alert"
	"github.com/joakim000/grow/internal/event"
	"github.com/joakim000/grow/internal/hardware"
	"github.com/joakim000/grow/internal/irrigation"
	"github.com/joakim000/grow/internal/light"
)

// ─── Mock Dependencies ──────────────────────────────────────────────

// mockActuators records arm and pump commands in order.
type mockActuators struct {
	mu       sync.Mutex
	commands []string
}

func (m *mockActuators) MoveArm(_ context.Context, armID, x, y, z int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, fmt.Sprintf("move %d %d %d %d", armID, x, y, z))
	return nil
}

func (m *mockActuators) SetPump(_ context.Context, pumpID int, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := "off"
	if on {
		state = "on"
	}
	m.commands = append(m.commands, fmt.Sprintf("pump %d %s", pumpID, state))
	return nil
}

func (m *mockActuators) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.commands)
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestLoop_ActuatorFaultHoldsWatering(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	f.sensor.set(water1, 25)

	f.loop.Tick(ctx)
	if n := len(f.irrigator.submitted()); n != 1 {
		t.Fatalf("submissions = %d, want 1", n)
	}

	f.loop.HandleReport(ctx, irrigation.Report{
		CycleID: "c1",
		WaterID: 1,
		Outcome: irrigation.OutcomeFailed,
		Reason:  fmt.Errorf("moving arm 1 to (87,4254,0): %w", hardware.ErrActuatorFault),
	})

	if got := f.events(water1, event.TypeDeviceFault); len(got) != 1 {
		t.Fatalf("fault events = %d, want 1", len(got))
	}
	snap := f.snapshot(t, water1)
	if !snap.Degraded || snap.Indicator != alert.Blue || !strings.Contains(snap.Fault, "actuator fault") {
		t.Errorf("snapshot after actuator fault = %+v", snap)
	}

	// Held: the station stays degraded and gets no new cycles.
	f.loop.Tick(ctx)
	f.loop.Tick(ctx)
	if n := len(f.irrigator.submitted()); n != 1 {
		t.Errorf("submissions while held = %d, want 1", n)
	}
	if got := f.events(water1, event.TypeDeviceFault); len(got) != 1 {
		t.Errorf("fault events while held = %d, want 1", len(got))
	}
	if got := f.events(water1, event.TypeDeviceRecovered); len(got) != 0 {
		t.Errorf("recovered while held = %d events, want 0", len(got))
	}

	// After the hold a single trial cycle is queued.
	f.clock.Advance(time.Hour)
	f.loop.Tick(ctx)
	f.loop.Tick(ctx)
	if n := len(f.irrigator.submitted()); n != 2 {
		t.Errorf("submissions after hold = %d, want 2", n)
	}
	if !f.snapshot(t, water1).Degraded {
		t.Error("station recovered before a cycle completed")
	}

	f.loop.HandleReport(ctx, irrigation.Report{CycleID: "c2", WaterID: 1, Outcome: irrigation.OutcomeCompleted})
	f.loop.Tick(ctx)

	if got := f.events(water1, event.TypeDeviceRecovered); len(got) != 1 {
		t.Errorf("recovered events = %d, want 1", len(got))
	}
	if snap := f.snapshot(t, water1); snap.Degraded || snap.Fault != "" {
		t.Errorf("snapshot after completed cycle = %+v", snap)
	}
	if n := len(f.irrigator.submitted()); n != 3 {
		t.Errorf("submissions after recovery = %d, want 3", n)
	}
}

func TestLoop_HandleReportIgnoresNonFaults(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	f.loop.Tick(ctx)

	tests := []struct {
		name   string
		report irrigation.Report
	}{
		{"cancelled", irrigation.Report{WaterID: 2, Outcome: irrigation.OutcomeFailed, Reason: irrigation.ErrCancelled}},
		{"resource busy", irrigation.Report{WaterID: 2, Outcome: irrigation.OutcomeFailed, Reason: actuator.ErrResourceBusy}},
		{"skipped", irrigation.Report{WaterID: 2, Outcome: irrigation.OutcomeSkipped}},
		{"unknown station", irrigation.Report{WaterID: 9, Outcome: irrigation.OutcomeFailed, Reason: hardware.ErrActuatorFault}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.loop.HandleReport(ctx, tt.report)
			if f.snapshot(t, water2).Degraded {
				t.Error("Water#2 degraded")
			}
		})
	}
	if got := f.sink.Events(event.TypeDeviceFault); len(got) != 0 {
		t.Errorf("fault events = %v, want none", got)
	}
}

func TestLoop_RunConsumesReports(t *testing.T) {
	reports := make(chan irrigation.Report, 1)
	f := newFixture(t, testConfig())
	f.loop.reports = reports
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	reports <- irrigation.Report{
		WaterID: 2,
		Outcome: irrigation.OutcomeFailed,
		Reason:  errors.Join(irrigation.ErrCancelled, fmt.Errorf("stopping pump 1: %w", hardware.ErrActuatorFault)),
	}

	deadline := time.Now().Add(2 * time.Second)
	for !f.snapshot(t, water2).Degraded {
		if time.Now().After(deadline) {
			t.Fatal("Water#2 not degraded after a failed pump-off report")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestLoop_WateringEndToEnd(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	registry := testRegistry(t)
	act := &mockActuators{}

	seq, err := irrigation.New(irrigation.Deps{
		Registry:       registry,
		Locks:          actuator.NewLocks(time.Second),
		Driver:         act,
		Clock:          f.clock,
		Sink:           f.sink,
		PumpOffBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
	if err != nil {
		t.Fatalf("irrigation.New() error = %v", err)
	}
	dispatcher := irrigation.NewDispatcher(seq, 2, nil)
	reports := make(chan irrigation.Report, 4)
	dispatcher.NotifyReports(reports)
	defer dispatcher.Shutdown(context.Background()) //nolint:errcheck // cleanup

	loop, err := New(Deps{
		Registry:  registry,
		Sensor:    f.sensor,
		Fans:      f.fans,
		Irrigator: dispatcher,
		Lights:    light.NewScheduler(registry, f.lamp, time.UTC, f.sink, nil),
		Clock:     f.clock,
		Sink:      f.sink,
	}, testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	f.sensor.set(water1, 25)
	loop.Tick(ctx)

	// Positioned, settling. A second tick does not queue the busy station again.
	f.clock.BlockUntil(1)
	loop.Tick(ctx)
	if active := dispatcher.Active(); len(active) != 1 || active[0].WaterID != 1 {
		t.Fatalf("Active() = %+v, want Water#1 only", active)
	}
	f.clock.Advance(time.Minute)

	f.clock.BlockUntil(1) // pumping
	f.clock.Advance(2 * time.Second)
	f.clock.BlockUntil(1) // settling after the pump
	f.clock.Advance(time.Minute)

	r := <-reports
	if r.WaterID != 1 || r.Outcome != irrigation.OutcomeCompleted || r.Reading != 25 {
		t.Fatalf("report = Water#%d %s at %v (%v), want Water#1 completed at 25", r.WaterID, r.Outcome, r.Reading, r.Reason)
	}
	loop.HandleReport(ctx, r)

	want := []string{"move 1 87 4254 0", "pump 1 on", "pump 1 off"}
	if got := act.sent(); !slices.Equal(got, want) {
		t.Errorf("commands = %q, want %q", got, want)
	}

	outcomes := f.sink.Events(event.TypeCycleOutcome)
	if len(outcomes) != 1 || outcomes[0].Device != water1 || outcomes[0].Outcome != event.OutcomeCompleted {
		t.Errorf("cycle outcome events = %v", outcomes)
	}
	for _, s := range loop.Status() {
		if s.Degraded {
			t.Errorf("%s degraded after a completed cycle", s.Device)
		}
	}
}
