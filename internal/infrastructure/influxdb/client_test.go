package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joakim000/grow/internal/device"
	"github.com/joakim000/grow/internal/infrastructure/config"
	"github.com/joakim000/grow/internal/infrastructure/influxdb"
)

// ─── Mock Dependencies ─────────────────────────────────────────────

// fakeInflux answers /ping and records line protocol bodies posted to /api/v2/write.
type fakeInflux struct {
	mu     sync.Mutex
	bodies []string
	fail   bool
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		f.mu.Lock()
		fail := f.fail
		f.bodies = append(f.bodies, string(body))
		f.mu.Unlock()
		if fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"invalid","message":"rejected"}`)) //nolint:errcheck // test server
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.bodies, "\n")
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "grow-test-token",
		Org:           "grow",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within 5s")
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(context.Background(), testConfig(url))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_Lifecycle(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() error = %v, want ErrNotConnected", err)
	}

	// Writes and flushes after Close are dropped silently.
	client.WriteReading(device.Ref{Kind: device.KindWater, ID: 1}, "moisture", 1, time.Now())
	client.Flush()
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestClient_WritesLineProtocol(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	water := device.Ref{Kind: device.KindWater, ID: 1}
	client.WriteReading(water, "moisture", 25, at)
	client.WriteAlert(water, "yellow_warning", "normal", "yellow_warning(low)", 25, at)
	client.WriteCycle(1, "completed", "", 25, 122*time.Second, at)
	client.Flush()

	waitFor(t, func() bool {
		body := fake.written()
		return strings.Contains(body, "grow_reading") &&
			strings.Contains(body, "grow_alert") &&
			strings.Contains(body, "grow_cycle")
	})

	body := fake.written()
	for _, want := range []string{
		"grow_reading,device_id=1,kind=water,quantity=moisture value=25",
		"grow_alert,device_id=1,kind=water,level=yellow_warning",
		"grow_cycle,outcome=completed,water_id=1 duration_s=122",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("written line protocol missing %q:\n%s", want, body)
		}
	}
}

func TestClient_WriteErrorsReachCallback(t *testing.T) {
	fake := &fakeInflux{fail: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	errs := make(chan error, 10)
	client.SetOnError(func(err error) { errs <- err })

	client.WriteReading(device.Ref{Kind: device.KindAir, ID: 1}, "temperature", 22, time.Now())
	client.Flush()

	select {
	case err := <-errs:
		if err == nil {
			t.Error("callback received nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error was not delivered to the callback")
	}
}

func TestPoints(t *testing.T) {
	at := time.Unix(0, 0)
	ref := device.Ref{Kind: device.KindLight, ID: 2}

	p := influxdb.ReadingPoint(ref, "light_level", 120, at)
	if p.Name() != influxdb.MeasurementReading {
		t.Errorf("ReadingPoint name = %q", p.Name())
	}
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["kind"] != "light" || tags["device_id"] != "2" || tags["quantity"] != "light_level" {
		t.Errorf("ReadingPoint tags = %v", tags)
	}

	c := influxdb.CyclePoint(1, "failed", "actuator fault", 25, time.Second, at)
	fields := map[string]interface{}{}
	for _, f := range c.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["reason"] != "actuator fault" || fields["duration_s"] != 1.0 {
		t.Errorf("CyclePoint fields = %v", fields)
	}

	ok := influxdb.CyclePoint(1, "completed", "", 25, time.Second, at)
	for _, f := range ok.FieldList() {
		if f.Key == "reason" {
			t.Error("CyclePoint without reason must omit the field")
		}
	}
}
