package irrigation

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/joakim000/grow/internal/device"
	"github.com/joakim000/grow/internal/event"
)

func TestDispatcher_Deduplicates(t *testing.T) {
	driver := &mockDriver{moveGate: make(chan struct{}), moving: make(chan struct{}, 4)}
	f := newFixture(t, driver)
	d := NewDispatcher(f.seq, 2, nil)
	reports := make(chan Report, 4)
	d.NotifyReports(reports)

	if !d.Submit(1, 25) {
		t.Fatal("first Submit() = false, want true")
	}
	<-driver.moving

	if d.Submit(1, 22) {
		t.Error("second Submit() for a busy station = true, want false")
	}
	if !d.Busy(1) {
		t.Error("Busy(1) = false while cycle runs")
	}

	active := d.Active()
	if len(active) != 1 || active[0].WaterID != 1 || active[0].State != StatePositioning || active[0].Reading != 25 {
		t.Errorf("Active() = %+v", active)
	}

	if !d.Stop(1) {
		t.Error("Stop(1) = false, want true")
	}
	r := <-reports
	if r.Outcome != OutcomeFailed || !errors.Is(r.Reason, ErrCancelled) {
		t.Errorf("stopped cycle = %s (%v), want failed with ErrCancelled", r.Outcome, r.Reason)
	}
	if r.CycleID != active[0].CycleID {
		t.Errorf("report cycle id = %q, want %q", r.CycleID, active[0].CycleID)
	}

	waitIdle(t, d, 1)
	if d.Stop(1) {
		t.Error("Stop(1) on an idle station = true, want false")
	}

	// The station accepts a new cycle once the previous one has ended.
	close(driver.moveGate)
	if !d.Submit(1, 55) {
		t.Error("Submit() after the cycle ended = false, want true")
	}
	if r := <-reports; r.Outcome != OutcomeSkipped {
		t.Errorf("outcome = %s, want skipped", r.Outcome)
	}

	if err := d.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestDispatcher_BoundedWorkers(t *testing.T) {
	driver := &mockDriver{moveGate: make(chan struct{}), moving: make(chan struct{}, 4)}
	f := newFixture(t, driver)
	d := NewDispatcher(f.seq, 1, nil)

	d.Submit(1, 25)
	<-driver.moving
	d.Submit(2, 25)

	deadline := time.Now().Add(time.Second)
	for {
		active := d.Active()
		if len(active) == 2 && active[1].State == StateQueued {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Active() = %+v, want Water#2 queued", active)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if n := len(d.Active()); n != 0 {
		t.Errorf("Active() after Shutdown = %d cycles, want 0", n)
	}
	if d.Submit(1, 25) {
		t.Error("Submit() after Shutdown = true, want false")
	}
	if n := driver.count("move 1 231 4254 0"); n != 0 {
		t.Error("queued cycle must not run after Shutdown")
	}
}

func TestDispatcher_StopQueuedReportsOutcome(t *testing.T) {
	driver := &mockDriver{moveGate: make(chan struct{}), moving: make(chan struct{}, 4)}
	f := newFixture(t, driver)
	d := NewDispatcher(f.seq, 1, nil)
	reports := make(chan Report, 4)
	d.NotifyReports(reports)

	d.Submit(1, 25)
	<-driver.moving
	if !d.Submit(2, 22) {
		t.Fatal("Submit(2) = false, want true")
	}
	queued := d.Active()[1]

	if !d.Stop(2) {
		t.Fatal("Stop(2) = false, want true")
	}
	r := <-reports
	if r.WaterID != 2 || r.Outcome != OutcomeFailed || !errors.Is(r.Reason, ErrCancelled) {
		t.Errorf("report = Water#%d %s (%v), want Water#2 failed with ErrCancelled", r.WaterID, r.Outcome, r.Reason)
	}
	if r.CycleID != queued.CycleID || r.Reading != 22 {
		t.Errorf("report cycle = %q at %v, want %q at 22", r.CycleID, r.Reading, queued.CycleID)
	}
	if want := []State{StateQueued, StateFailed}; !slices.Equal(r.States, want) {
		t.Errorf("states = %v, want %v", r.States, want)
	}
	waitIdle(t, d, 2)

	water2 := device.Ref{Kind: device.KindWater, ID: 2}
	var outcomes []event.Event
	for _, e := range f.sink.Events(event.TypeCycleOutcome) {
		if e.Device == water2 {
			outcomes = append(outcomes, e)
		}
	}
	if len(outcomes) != 1 || outcomes[0].Outcome != event.OutcomeFailed || outcomes[0].CycleID != queued.CycleID {
		t.Errorf("Water#2 outcome events = %v, want one failed", outcomes)
	}
	if n := driver.count("move 1 231 4254 0"); n != 0 {
		t.Error("stopped queued cycle moved the arm")
	}

	if err := d.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if r := <-reports; r.WaterID != 1 || !errors.Is(r.Reason, ErrCancelled) {
		t.Errorf("running cycle report = Water#%d (%v), want Water#1 cancelled", r.WaterID, r.Reason)
	}
}

func TestDispatcher_ShutdownStopsPump(t *testing.T) {
	f := newFixture(t, nil)
	d := NewDispatcher(f.seq, 4, nil)
	reports := make(chan Report, 1)
	d.NotifyReports(reports)

	d.Submit(1, 25)
	f.clock.BlockUntil(1)
	f.clock.Advance(60 * time.Second)
	f.clock.BlockUntil(1) // pumping

	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if n := f.driver.count("pump 1 off"); n != 1 {
		t.Errorf("pump off sent %d times, want 1", n)
	}
	if r := <-reports; !errors.Is(r.Reason, ErrCancelled) {
		t.Errorf("reason = %v, want ErrCancelled", r.Reason)
	}
}

func TestDispatcher_ShutdownDeadline(t *testing.T) {
	f := newFixture(t, nil)
	d := NewDispatcher(f.seq, 1, nil)

	d.Submit(1, 25)
	f.clock.BlockUntil(1)

	expired, cancel := context.WithCancel(context.Background())
	cancel()

	// The worker may or may not have finished by the time the expired
	// context is checked; both results are valid.
	if err := d.Shutdown(expired); err != nil && !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("Shutdown() error = %v, want nil or ErrDispatcherClosed", err)
	}
	if err := d.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func waitIdle(t *testing.T, d *Dispatcher, waterID int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for d.Busy(waterID) {
		if time.Now().After(deadline) {
			t.Fatalf("Water#%d still busy", waterID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
