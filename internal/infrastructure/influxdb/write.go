package influxdb

import (
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/joakim000/grow/internal/device"
)

// Measurement names.
const (
	MeasurementReading = "grow_reading"
	MeasurementAlert   = "grow_alert"
	MeasurementCycle   = "grow_cycle"
)

func deviceTags(ref device.Ref) map[string]string {
	return map[string]string{
		"kind":      strings.ToLower(string(ref.Kind)),
		"device_id": strconv.Itoa(ref.ID),
	}
}

// ReadingPoint builds the point for one raw sensor sample.
func ReadingPoint(ref device.Ref, quantity string, value float64, at time.Time) *write.Point {
	tags := deviceTags(ref)
	tags["quantity"] = quantity
	return write.NewPoint(MeasurementReading, tags, map[string]interface{}{"value": value}, at)
}

// AlertPoint builds the point for an alert level transition.
func AlertPoint(ref device.Ref, level, old, new string, value float64, at time.Time) *write.Point {
	tags := deviceTags(ref)
	tags["level"] = level
	return write.NewPoint(MeasurementAlert, tags, map[string]interface{}{
		"value": value,
		"old":   old,
		"new":   new,
	}, at)
}

// CyclePoint builds the point for a finished watering cycle.
func CyclePoint(waterID int, outcome, reason string, reading float64, duration time.Duration, at time.Time) *write.Point {
	fields := map[string]interface{}{
		"duration_s": duration.Seconds(),
		"reading":    reading,
	}
	if reason != "" {
		fields["reason"] = reason
	}
	return write.NewPoint(MeasurementCycle,
		map[string]string{"water_id": strconv.Itoa(waterID), "outcome": outcome},
		fields, at)
}

// WriteReading queues a sensor sample. Dropped when not connected.
func (c *Client) WriteReading(ref device.Ref, quantity string, value float64, at time.Time) {
	c.writePoint(ReadingPoint(ref, quantity, value, at))
}

// WriteAlert queues an alert transition.
func (c *Client) WriteAlert(ref device.Ref, level, old, new string, value float64, at time.Time) {
	c.writePoint(AlertPoint(ref, level, old, new, value, at))
}

// WriteCycle queues a watering cycle outcome.
func (c *Client) WriteCycle(waterID int, outcome, reason string, reading float64, duration time.Duration, at time.Time) {
	c.writePoint(CyclePoint(waterID, outcome, reason, reading, duration, at))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}
