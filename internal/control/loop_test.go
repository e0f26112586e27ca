package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/joakim000/grow/internal/alert"
	"github.com/joakim000/grow/internal/device"
	"github.com/joakim000/grow/internal/event"
	"github.com/joakim000/grow/internal/hardware"
	"github.com/joakim000/grow/internal/light"
)

// ─── Mock Dependencies ──────────────────────────────────────────────

type mockSensor struct {
	mu     sync.Mutex
	values map[device.Ref]float64
	errs   map[device.Ref]error
	rpm    map[int]float64
	calls  map[device.Ref]int
}

func newMockSensor() *mockSensor {
	return &mockSensor{
		values: make(map[device.Ref]float64),
		errs:   make(map[device.Ref]error),
		rpm:    make(map[int]float64),
		calls:  make(map[device.Ref]int),
	}
}

func (m *mockSensor) Read(_ context.Context, kind device.Kind, id int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := device.Ref{Kind: kind, ID: id}
	m.calls[ref]++
	if err, ok := m.errs[ref]; ok {
		return 0, err
	}
	v, ok := m.values[ref]
	if !ok {
		return 0, fmt.Errorf("%w: %s: no value", hardware.ErrSensorUnavailable, ref)
	}
	return v, nil
}

func (m *mockSensor) ReadFanRPM(_ context.Context, airID int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rpm[airID]
	if !ok {
		return 0, hardware.ErrSensorUnavailable
	}
	return v, nil
}

func (m *mockSensor) set(ref device.Ref, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[ref] = v
	delete(m.errs, ref)
}

func (m *mockSensor) fail(ref device.Ref, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[ref] = err
}

func (m *mockSensor) setRPM(airID int, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rpm[airID] = v
}

func (m *mockSensor) callCount(ref device.Ref) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[ref]
}

type mockFans struct {
	mu    sync.Mutex
	modes []alert.FanMode
	err   error
}

func (m *mockFans) SetFan(_ context.Context, _ int, mode alert.FanMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.modes = append(m.modes, mode)
	return nil
}

func (m *mockFans) commanded() []alert.FanMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]alert.FanMode(nil), m.modes...)
}

type submission struct {
	waterID int
	reading float64
}

type mockIrrigator struct {
	mu   sync.Mutex
	subs []submission
}

func (m *mockIrrigator) Submit(waterID int, reading float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, submission{waterID, reading})
	return true
}

func (m *mockIrrigator) submitted() []submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]submission(nil), m.subs...)
}

type mockLamp struct {
	mu  sync.Mutex
	on  map[int]bool
	err error
}

func (m *mockLamp) SetLamp(_ context.Context, lightID int, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.on == nil {
		m.on = make(map[int]bool)
	}
	m.on[lightID] = on
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────

var (
	air1   = device.Ref{Kind: device.KindAir, ID: 1}
	water1 = device.Ref{Kind: device.KindWater, ID: 1}
	water2 = device.Ref{Kind: device.KindWater, ID: 2}
	light1 = device.Ref{Kind: device.KindLight, ID: 1}
	tank1  = device.Ref{Kind: device.KindTank, ID: 1}
)

func testRegistry(t *testing.T) *device.Registry {
	t.Helper()
	water := func(x int) device.WaterSettings {
		return device.WaterSettings{
			MoistureLowRedAlert: 20, MoistureLowYellowWarning: 30, MoistureLimitWater: 50,
			MoistureHighYellowWarning: 90, MoistureHighRedAlert: 100,
			TankID: 1, PumpID: 1,
			PumpTime: 2 * time.Second, SettlingTime: time.Minute,
			Position: device.Position{ArmID: 1, X: x, Y: 4254, Z: 0},
		}
	}
	r, err := device.New([]device.Device{
		{Kind: device.KindAir, ID: 1, Settings: device.AirSettings{
			TempHighYellowWarning: 35, TempHighRedAlert: 40, TempFanLow: 25, TempFanHigh: 30, FanRPMLowRedAlert: 10,
		}},
		{Kind: device.KindWater, ID: 1, Settings: water(87)},
		{Kind: device.KindWater, ID: 2, Settings: water(231)},
		{Kind: device.KindLight, ID: 1, Settings: device.LightSettings{
			LightLevelLowYellowWarning: 100, LightLevelLowRedAlert: 80,
			LampOn: device.TimeOfDay{Hour: 19, Minute: 30}, LampOff: device.TimeOfDay{Hour: 20, Minute: 45},
		}},
		{Kind: device.KindArm, ID: 1, Settings: device.Passive{}},
		{Kind: device.KindPump, ID: 1, Settings: device.Passive{}},
		{Kind: device.KindTank, ID: 1, Settings: device.Passive{}},
	})
	if err != nil {
		t.Fatalf("device.New() error = %v", err)
	}
	return r
}

type fixture struct {
	loop      *Loop
	sensor    *mockSensor
	fans      *mockFans
	irrigator *mockIrrigator
	lamp      *mockLamp
	sink      *event.Recorder
	clock     *clockwork.FakeClock
}

func testConfig() Config {
	return Config{
		Interval:           10 * time.Second,
		SensorTimeout:      time.Second,
		BreakerMaxFailures: 100,
		BreakerOpenTimeout: time.Hour,
		Tank:               alert.TankBands{Empty: 5, Low: 20, Overfill: 98},
	}
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	registry := testRegistry(t)
	f := &fixture{
		sensor:    newMockSensor(),
		fans:      &mockFans{},
		irrigator: &mockIrrigator{},
		lamp:      &mockLamp{},
		sink:      event.NewRecorder(0),
		clock:     clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)),
	}

	// Healthy defaults.
	f.sensor.set(air1, 20)
	f.sensor.set(water1, 60)
	f.sensor.set(water2, 60)
	f.sensor.set(light1, 500)
	f.sensor.set(tank1, 50)

	loop, err := New(Deps{
		Registry:  registry,
		Sensor:    f.sensor,
		Fans:      f.fans,
		Irrigator: f.irrigator,
		Lights:    light.NewScheduler(registry, f.lamp, time.UTC, f.sink, nil),
		Clock:     f.clock,
		Sink:      f.sink,
	}, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.loop = loop
	return f
}

func (f *fixture) events(ref device.Ref, types ...event.Type) []event.Event {
	var out []event.Event
	for _, e := range f.sink.Events(types...) {
		if e.Device == ref {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) snapshot(t *testing.T, ref device.Ref) Snapshot {
	t.Helper()
	for _, s := range f.loop.Status() {
		if s.Device == ref {
			return s
		}
	}
	t.Fatalf("no snapshot for %s", ref)
	return Snapshot{}
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	if _, err := New(Deps{}, testConfig()); err == nil {
		t.Error("New() without registry error = nil")
	}
	if _, err := New(Deps{Registry: testRegistry(t), Sensor: newMockSensor()}, Config{}); err == nil {
		t.Error("New() with zero interval error = nil")
	}
}

func TestLoop_MonitorsSensorDevicesOnly(t *testing.T) {
	f := newFixture(t, testConfig())

	var refs []device.Ref
	for _, s := range f.loop.Status() {
		refs = append(refs, s.Device)
		if s.Indicator != alert.Blue {
			t.Errorf("%s before first tick indicator = %s, want blue", s.Device, s.Indicator)
		}
	}
	want := []device.Ref{air1, water1, water2, light1, tank1}
	if fmt.Sprint(refs) != fmt.Sprint(want) {
		t.Errorf("monitored = %v, want %v", refs, want)
	}
}

func TestLoop_Watering(t *testing.T) {
	f := newFixture(t, testConfig())
	f.sensor.set(water1, 25)
	f.sensor.set(water2, 55)

	f.loop.Tick(context.Background())

	subs := f.irrigator.submitted()
	if len(subs) != 1 || subs[0] != (submission{1, 25}) {
		t.Errorf("submitted = %+v, want Water#1 at 25", subs)
	}

	changes := f.events(water1, event.TypeAlertChanged)
	if len(changes) != 1 || changes[0].Old != "normal" || changes[0].New != "yellow_warning(low)" {
		t.Errorf("Water#1 alert events = %v", changes)
	}
	if got := f.events(water2, event.TypeAlertChanged); len(got) != 0 {
		t.Errorf("Water#2 alert events = %v, want none", got)
	}

	// A repeated level emits nothing new but the station is queued again;
	// the dispatcher deduplicates.
	f.loop.Tick(context.Background())
	if got := f.events(water1, event.TypeAlertChanged); len(got) != 1 {
		t.Errorf("alert events after second tick = %d, want 1", len(got))
	}
	if got := len(f.irrigator.submitted()); got != 2 {
		t.Errorf("submissions = %d, want 2", got)
	}

	snap := f.snapshot(t, water1)
	if snap.Level != "yellow_warning(low)" || snap.Indicator != alert.Yellow || *snap.Value != 25 {
		t.Errorf("Water#1 snapshot = %+v", snap)
	}
}

func TestLoop_Hysteresis(t *testing.T) {
	cfg := testConfig()
	cfg.Hysteresis = 2
	f := newFixture(t, cfg)
	ctx := context.Background()

	f.sensor.set(water1, 25)
	f.loop.Tick(ctx)
	f.sensor.set(water1, 31)
	f.loop.Tick(ctx)
	if got := f.snapshot(t, water1).Level; got != "yellow_warning(low)" {
		t.Errorf("level at 31 with margin 2 = %s, want held yellow", got)
	}
	f.sensor.set(water1, 33)
	f.loop.Tick(ctx)
	if got := f.snapshot(t, water1).Level; got != "normal" {
		t.Errorf("level at 33 = %s, want normal", got)
	}
	if got := f.events(water1, event.TypeAlertChanged); len(got) != 2 {
		t.Errorf("alert events = %v, want 2", got)
	}
}

func TestLoop_DegradedAndRecovery(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	f.sensor.fail(water1, fmt.Errorf("%w: probe unplugged", hardware.ErrSensorUnavailable))
	f.loop.Tick(ctx)
	f.loop.Tick(ctx)

	faults := f.events(water1, event.TypeDeviceFault)
	if len(faults) != 1 {
		t.Fatalf("fault events = %d, want 1 (edge only)", len(faults))
	}
	snap := f.snapshot(t, water1)
	if !snap.Degraded || snap.Indicator != alert.Blue || !strings.Contains(snap.Fault, "probe unplugged") {
		t.Errorf("degraded snapshot = %+v", snap)
	}
	if f.snapshot(t, water2).Degraded {
		t.Error("Water#2 must not be affected by Water#1's fault")
	}

	f.sensor.set(water1, 60)
	f.loop.Tick(ctx)

	if got := f.events(water1, event.TypeDeviceRecovered); len(got) != 1 {
		t.Errorf("recovered events = %d, want 1", len(got))
	}
	if snap := f.snapshot(t, water1); snap.Degraded || snap.Fault != "" || snap.Indicator != alert.Green {
		t.Errorf("recovered snapshot = %+v", snap)
	}
}

func TestLoop_BreakerStopsPolling(t *testing.T) {
	cfg := testConfig()
	cfg.BreakerMaxFailures = 2
	f := newFixture(t, cfg)
	ctx := context.Background()

	f.sensor.fail(water1, hardware.ErrSensorUnavailable)
	for i := 0; i < 4; i++ {
		f.loop.Tick(ctx)
	}

	if n := f.sensor.callCount(water1); n != 2 {
		t.Errorf("sensor reads with open breaker = %d, want 2", n)
	}
	if snap := f.snapshot(t, water1); !strings.Contains(snap.Fault, ErrBreakerOpen.Error()) {
		t.Errorf("fault = %q, want breaker open", snap.Fault)
	}
}

func TestLoop_FanControl(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	f.sensor.setRPM(1, 1200)

	f.sensor.set(air1, 27)
	f.loop.Tick(ctx)
	f.loop.Tick(ctx)
	f.sensor.set(air1, 32)
	f.loop.Tick(ctx)
	f.sensor.set(air1, 25)
	f.loop.Tick(ctx)

	want := []alert.FanMode{alert.FanLow, alert.FanHigh, alert.FanOff}
	if got := f.fans.commanded(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("fan commands = %v, want %v", got, want)
	}

	changes := f.events(air1, event.TypeFanMode)
	if len(changes) != 3 || changes[0].Old != "unknown" || changes[0].New != "low" || changes[2].New != "off" {
		t.Errorf("fan events = %v", changes)
	}
	if got := f.snapshot(t, air1).FanMode; got != "off" {
		t.Errorf("snapshot fan mode = %q, want off", got)
	}
}

func TestLoop_FanRPMFloor(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	f.sensor.set(air1, 27)
	f.sensor.setRPM(1, 5)

	// The fan starts on this tick; its RPM is not judged yet.
	f.loop.Tick(ctx)
	if got := f.snapshot(t, air1).Level; got != "normal" {
		t.Errorf("level on the starting tick = %s, want normal", got)
	}

	f.loop.Tick(ctx)
	snap := f.snapshot(t, air1)
	if snap.Level != "red_alert(low)" || snap.Indicator != alert.Red || snap.FanRPM == nil || *snap.FanRPM != 5 {
		t.Errorf("stalled fan snapshot = %+v", snap)
	}

	f.sensor.setRPM(1, 1200)
	f.loop.Tick(ctx)
	if got := f.snapshot(t, air1).Level; got != "normal" {
		t.Errorf("level with spinning fan = %s, want normal", got)
	}
}

func TestLoop_FanFaultDegrades(t *testing.T) {
	f := newFixture(t, testConfig())
	f.fans.err = fmt.Errorf("%w: no answer", hardware.ErrActuatorFault)
	f.sensor.set(air1, 33)

	f.loop.Tick(context.Background())

	snap := f.snapshot(t, air1)
	if !snap.Degraded || snap.FanMode != "" {
		t.Errorf("snapshot = %+v, want degraded without fan mode", snap)
	}
	faults := f.events(air1, event.TypeDeviceFault)
	if len(faults) != 1 || !strings.Contains(faults[0].Reason, "no answer") {
		t.Errorf("fault events = %v", faults)
	}
}

func TestLoop_Light(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	// Noon: lamp scheduled off, darkness is fine.
	f.sensor.set(light1, 0)
	f.loop.Tick(ctx)
	snap := f.snapshot(t, light1)
	if snap.LampOn == nil || *snap.LampOn || snap.Level != "normal" {
		t.Errorf("noon snapshot = %+v", snap)
	}

	// 20:00: lamp on, level 50 is below the red floor.
	f.clock.Advance(8 * time.Hour)
	f.sensor.set(light1, 50)
	f.loop.Tick(ctx)
	snap = f.snapshot(t, light1)
	if snap.LampOn == nil || !*snap.LampOn || snap.Level != "red_alert(low)" {
		t.Errorf("evening snapshot = %+v", snap)
	}
	if lamps := f.sink.Events(event.TypeLamp); len(lamps) != 2 {
		t.Errorf("lamp events = %v, want 2", lamps)
	}
}

func TestLoop_LightSensorDownKeepsSchedule(t *testing.T) {
	f := newFixture(t, testConfig())
	f.clock.Advance(8 * time.Hour)
	f.sensor.fail(light1, hardware.ErrSensorUnavailable)

	f.loop.Tick(context.Background())

	snap := f.snapshot(t, light1)
	if !snap.Degraded || snap.LampOn == nil || !*snap.LampOn {
		t.Errorf("snapshot = %+v, want degraded with lamp on", snap)
	}
}

func TestLoop_Tank(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	f.loop.Tick(ctx)
	f.sensor.set(tank1, 3)
	f.loop.Tick(ctx)
	f.sensor.fail(tank1, errors.New("float switch"))
	f.loop.Tick(ctx)

	changes := f.events(tank1, event.TypeTankLevel)
	want := []string{"no_data->ok", "ok->empty", "empty->no_data"}
	if len(changes) != len(want) {
		t.Fatalf("tank events = %v", changes)
	}
	for i, w := range want {
		if got := changes[i].Old + "->" + changes[i].New; got != w {
			t.Errorf("tank event %d = %s, want %s", i, got, w)
		}
	}
	if changes[1].Value == nil || *changes[1].Value != 3 {
		t.Errorf("empty event value = %v, want 3", changes[1].Value)
	}

	snap := f.snapshot(t, tank1)
	if snap.TankLevel != "no_data" || snap.Indicator != alert.Blue || !snap.Degraded {
		t.Errorf("tank snapshot = %+v", snap)
	}
}

func TestLoop_StatusEvent(t *testing.T) {
	f := newFixture(t, testConfig())
	f.sensor.set(water1, 15)

	f.loop.Tick(context.Background())

	statuses := f.sink.Events(event.TypeStatus)
	if len(statuses) != 1 {
		t.Fatalf("status events = %d, want 1", len(statuses))
	}
	s := statuses[0]
	if s.Indicator != alert.Red {
		t.Errorf("site indicator = %s, want red", s.Indicator)
	}
	if s.Summary["Water#1"] != alert.Red || s.Summary["Water#2"] != alert.Green || len(s.Summary) != 5 {
		t.Errorf("summary = %v", s.Summary)
	}
}

func TestLoop_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.sensor.callCount(water1) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first tick did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
