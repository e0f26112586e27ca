package event

import (
	"context"
	"time"

	"github.com/joakim000/grow/internal/device"
	"github.com/joakim000/grow/internal/infrastructure/mqtt"
)

// Publisher sends JSON payloads to the message bus. *mqtt.Client implements it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// MQTTSink publishes events under grow/event/{type}/{kind}/{id}. Status
// events are published retained on grow/system/status instead. Readings are
// not republished: they arrive over MQTT in the first place.
type MQTTSink struct {
	pub    Publisher
	logger Logger
}

// NewMQTTSink creates a sink publishing through pub.
func NewMQTTSink(pub Publisher, logger Logger) *MQTTSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTSink{pub: pub, logger: logger}
}

// statusPayload is the retained site status message.
type statusPayload struct {
	Indicator string            `json:"indicator"`
	Devices   map[string]string `json:"devices"`
	Timestamp string            `json:"timestamp"`
}

// Emit implements Sink.
func (s *MQTTSink) Emit(_ context.Context, e Event) {
	var err error
	switch e.Type {
	case TypeReading:
		return
	case TypeStatus:
		devices := make(map[string]string, len(e.Summary))
		for name, ind := range e.Summary {
			devices[name] = string(ind)
		}
		err = s.pub.PublishJSON(mqtt.Topics{}.SystemStatus(), statusPayload{
			Indicator: string(e.Indicator),
			Devices:   devices,
			Timestamp: e.Time.UTC().Format(time.RFC3339),
		}, true)
	default:
		err = s.pub.PublishJSON(mqtt.Topics{}.Event(string(e.Type), e.Device), e, false)
	}
	if err != nil {
		s.logger.Warn("event publish failed", "type", e.Type, "device", deviceLabel(e.Device), "error", err)
	}
}

func deviceLabel(ref device.Ref) string {
	if ref.Kind == "" {
		return "site"
	}
	return ref.String()
}
