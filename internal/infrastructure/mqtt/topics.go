package mqtt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joakim000/grow/internal/device"
)

// TopicPrefix is the root of every grow topic.
const TopicPrefix = "grow"

// Topics provides builders for grow MQTT topics.
//
// Device kinds appear lower-cased in topics:
//
//	grow/sensor/water/1       sensor values published by the hardware
//	grow/command/pump/1       actuator commands published by the controller
//	grow/ack/arm/1            actuator acknowledgements from the hardware
//	grow/event/cycle_outcome/water/1
//	grow/system/status        retained site status
//	grow/system/availability  retained online/offline (LWT)
type Topics struct{}

func segment(kind device.Kind) string {
	return strings.ToLower(string(kind))
}

// Sensor returns the topic a device's sensor values arrive on.
func (Topics) Sensor(ref device.Ref) string {
	return fmt.Sprintf("%s/sensor/%s/%d", TopicPrefix, segment(ref.Kind), ref.ID)
}

// Command returns the topic actuator commands for a device are sent on.
func (Topics) Command(ref device.Ref) string {
	return fmt.Sprintf("%s/command/%s/%d", TopicPrefix, segment(ref.Kind), ref.ID)
}

// Ack returns the topic acknowledgements for a device's commands arrive on.
func (Topics) Ack(ref device.Ref) string {
	return fmt.Sprintf("%s/ack/%s/%d", TopicPrefix, segment(ref.Kind), ref.ID)
}

// Event returns the topic an observability event is published on.
// Site-wide events (zero Ref) omit the device part.
func (Topics) Event(eventType string, ref device.Ref) string {
	if ref.Kind == "" {
		return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
	}
	return fmt.Sprintf("%s/event/%s/%s/%d", TopicPrefix, eventType, segment(ref.Kind), ref.ID)
}

// SystemStatus returns the retained site status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// SystemAvailability returns the retained online/offline topic used for the LWT.
func (Topics) SystemAvailability() string {
	return TopicPrefix + "/system/availability"
}

// AllSensors matches every sensor topic.
//
// Pattern: grow/sensor/+/+
func (Topics) AllSensors() string {
	return TopicPrefix + "/sensor/+/+"
}

// AllAcks matches every acknowledgement topic.
//
// Pattern: grow/ack/+/+
func (Topics) AllAcks() string {
	return TopicPrefix + "/ack/+/+"
}

// ParseDeviceTopic extracts the device from a grow/{category}/{kind}/{id} topic.
//
// Parameters:
//   - topic: A concrete topic (no wildcards)
//
// Returns:
//   - category: "sensor", "command" or "ack"
//   - ref: The device the topic addresses
//   - error: ErrInvalidTopic (wrapped) when the topic does not have that shape
func ParseDeviceTopic(topic string) (category string, ref device.Ref, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix {
		return "", device.Ref{}, fmt.Errorf("%w: %q is not a device topic", ErrInvalidTopic, topic)
	}

	var kind device.Kind
	for _, k := range device.AllKinds() {
		if segment(k) == parts[2] {
			kind = k
			break
		}
	}
	if kind == "" {
		return "", device.Ref{}, fmt.Errorf("%w: unknown device kind %q", ErrInvalidTopic, parts[2])
	}

	id, convErr := strconv.Atoi(parts[3])
	if convErr != nil {
		return "", device.Ref{}, fmt.Errorf("%w: device id %q", ErrInvalidTopic, parts[3])
	}

	return parts[1], device.Ref{Kind: kind, ID: id}, nil
}
