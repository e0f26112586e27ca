package event

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "grow"

// Metrics is a Sink that maintains Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	alertTransitions *prometheus.CounterVec
	alertLevel       *prometheus.GaugeVec
	readings         *prometheus.GaugeVec
	cycles           *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	faults           *prometheus.CounterVec
	siteIndicator    *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		alertTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alert_transitions_total",
			Help:      "Alert level changes by device kind and new level.",
		}, []string{"kind", "level"}),
		alertLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "alert_level",
			Help:      "Current alert level per device (0 normal, 1 yellow, 2 red).",
		}, []string{"device"}),
		readings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sensor_value",
			Help:      "Last sensor reading per device and quantity.",
		}, []string{"device", "quantity"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "irrigation_cycles_total",
			Help:      "Finished watering cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "irrigation_cycle_duration_seconds",
			Help:      "Wall time of completed and failed watering cycles.",
			Buckets:   []float64{1, 10, 30, 60, 120, 300, 600, 1200},
		}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "device_faults_total",
			Help:      "Healthy to degraded transitions by device kind.",
		}, []string{"kind"}),
		siteIndicator: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "site_indicator",
			Help:      "1 for the current site indicator colour, 0 for the others.",
		}, []string{"colour"}),
	}

	m.registry.MustRegister(
		m.alertTransitions,
		m.alertLevel,
		m.readings,
		m.cycles,
		m.cycleDuration,
		m.faults,
		m.siteIndicator,
	)
	return m
}

// Registry exposes the private registry, for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Emit implements Sink.
func (m *Metrics) Emit(_ context.Context, e Event) {
	switch e.Type {
	case TypeReading:
		if e.Value != nil {
			m.readings.WithLabelValues(e.Device.String(), e.Quantity).Set(*e.Value)
		}
	case TypeAlertChanged:
		m.alertTransitions.WithLabelValues(strings.ToLower(string(e.Device.Kind)), e.Level.String()).Inc()
		m.alertLevel.WithLabelValues(e.Device.String()).Set(float64(e.Level))
	case TypeCycleOutcome:
		m.cycles.WithLabelValues(e.Outcome).Inc()
		if e.Outcome != OutcomeSkipped {
			m.cycleDuration.Observe(e.Duration.Seconds())
		}
	case TypeDeviceFault:
		m.faults.WithLabelValues(strings.ToLower(string(e.Device.Kind))).Inc()
	case TypeStatus:
		for _, colour := range []string{"green", "yellow", "red", "blue"} {
			v := 0.0
			if string(e.Indicator) == colour {
				v = 1
			}
			m.siteIndicator.WithLabelValues(colour).Set(v)
		}
	}
}
