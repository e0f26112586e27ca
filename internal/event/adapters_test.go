package event

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/joakim000/grow/internal/alert"
	"github.com/joakim000/grow/internal/device"
)

// ─── Mock Dependencies ─────────────────────────────────────────────

type published struct {
	topic    string
	payload  any
	retained bool
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *mockPublisher) PublishJSON(topic string, v any, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic, v, retained})
	return nil
}

type mockWriter struct {
	mu      sync.Mutex
	calls   []string
	outcome string
}

func (w *mockWriter) WriteReading(ref device.Ref, quantity string, _ float64, _ time.Time) {
	w.record("reading " + ref.String() + " " + quantity)
}

func (w *mockWriter) WriteAlert(ref device.Ref, level, _, _ string, _ float64, _ time.Time) {
	w.record("alert " + ref.String() + " " + level)
}

func (w *mockWriter) WriteCycle(_ int, outcome, _ string, _ float64, _ time.Duration, _ time.Time) {
	w.mu.Lock()
	w.outcome = outcome
	w.mu.Unlock()
	w.record("cycle")
}

func (w *mockWriter) record(call string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, call)
}

func TestMQTTSink(t *testing.T) {
	pub := &mockPublisher{}
	sink := NewMQTTSink(pub, nil)
	ctx := context.Background()

	sink.Emit(ctx, Reading(water1, "moisture", 40, testAt))
	sink.Emit(ctx, CycleOutcome(1, "c1", OutcomeCompleted, "", 25, time.Minute, testAt))
	sink.Emit(ctx, Status(alert.Red, map[string]alert.Indicator{"Air#1": alert.Red}, testAt))

	if len(pub.msgs) != 2 {
		t.Fatalf("published %d messages, want 2 (readings are not republished)", len(pub.msgs))
	}
	if pub.msgs[0].topic != "grow/event/cycle_outcome/water/1" || pub.msgs[0].retained {
		t.Errorf("cycle message = %+v", pub.msgs[0])
	}

	status := pub.msgs[1]
	if status.topic != "grow/system/status" || !status.retained {
		t.Errorf("status message topic/retained = %q/%v", status.topic, status.retained)
	}
	payload, ok := status.payload.(statusPayload)
	if !ok {
		t.Fatalf("status payload type %T", status.payload)
	}
	if payload.Indicator != "red" || payload.Devices["Air#1"] != "red" {
		t.Errorf("status payload = %+v", payload)
	}
}

func TestMQTTSink_PublishFailureIsLogged(t *testing.T) {
	logger := &mockLogger{}
	sink := NewMQTTSink(&mockPublisher{err: errors.New("not connected")}, logger)

	sink.Emit(context.Background(), DeviceRecovered(water1, testAt))
	if got := logger.last(); got.level != "warn" || got.msg != "event publish failed" {
		t.Errorf("logged %+v", got)
	}
}

func TestTelemetrySink(t *testing.T) {
	w := &mockWriter{}
	sink := NewTelemetrySink(w)
	ctx := context.Background()

	sink.Emit(ctx, Reading(water1, "moisture", 40, testAt))
	sink.Emit(ctx, AlertChanged(water1, alert.OK, alert.YellowLow, 25, testAt))
	sink.Emit(ctx, CycleOutcome(1, "c1", OutcomeFailed, "busy", 25, time.Minute, testAt))
	sink.Emit(ctx, DeviceRecovered(water1, testAt)) // ignored

	want := []string{"reading Water#1 moisture", "alert Water#1 yellow_warning", "cycle"}
	if strings.Join(w.calls, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %v, want %v", w.calls, want)
	}
	if w.outcome != OutcomeFailed {
		t.Errorf("cycle outcome = %q", w.outcome)
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()

	m.Emit(ctx, AlertChanged(water1, alert.OK, alert.YellowLow, 25, testAt))
	m.Emit(ctx, AlertChanged(water1, alert.YellowLow, alert.RedLow, 15, testAt))
	m.Emit(ctx, CycleOutcome(1, "c1", OutcomeCompleted, "", 25, 2*time.Minute, testAt))
	m.Emit(ctx, CycleOutcome(2, "c2", OutcomeSkipped, "", 55, 0, testAt))
	m.Emit(ctx, DeviceFault(water1, errors.New("x"), testAt))
	m.Emit(ctx, Reading(water1, "moisture", 15, testAt))
	m.Emit(ctx, Status(alert.Red, nil, testAt))

	if got := testutil.ToFloat64(m.alertTransitions.WithLabelValues("water", "red_alert")); got != 1 {
		t.Errorf("alert_transitions_total{water,red_alert} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.alertLevel.WithLabelValues("Water#1")); got != 2 {
		t.Errorf("alert_level{Water#1} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cycles.WithLabelValues(OutcomeSkipped)); got != 1 {
		t.Errorf("irrigation_cycles_total{skipped} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.cycleDuration); got != 1 {
		t.Errorf("cycle duration series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.faults.WithLabelValues("water")); got != 1 {
		t.Errorf("device_faults_total{water} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.readings.WithLabelValues("Water#1", "moisture")); got != 15 {
		t.Errorf("sensor_value = %v, want 15", got)
	}
	if got := testutil.ToFloat64(m.siteIndicator.WithLabelValues("red")); got != 1 {
		t.Errorf("site_indicator{red} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.siteIndicator.WithLabelValues("green")); got != 0 {
		t.Errorf("site_indicator{green} = %v, want 0", got)
	}

	if m.Handler() == nil || m.Registry() == nil {
		t.Error("Handler()/Registry() must not be nil")
	}
}
