package hardware

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/joakim000/grow/internal/alert"
	"github.com/joakim000/grow/internal/device"
	"github.com/joakim000/grow/internal/infrastructure/mqtt"
)

// Bus is the MQTT surface the bridge uses. *mqtt.Client implements it.
type Bus interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SensorMessage is the payload on grow/sensor/{kind}/{id}.
type SensorMessage struct {
	Value  *float64 `json:"value"`
	FanRPM *float64 `json:"fan_rpm,omitempty"`
}

// Command is the payload on grow/command/{kind}/{id}.
type Command struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	On        *bool  `json:"on,omitempty"`
	X         *int   `json:"x,omitempty"`
	Y         *int   `json:"y,omitempty"`
	Z         *int   `json:"z,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Command actions.
const (
	ActionMove = "move"
	ActionPump = "pump"
	ActionLamp = "lamp"
	ActionFan  = "fan"
)

// Ack is the payload on grow/ack/{kind}/{id}.
type Ack struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type sample struct {
	value   *float64
	rpm     *float64
	valueAt time.Time
	rpmAt   time.Time
}

// BridgeConfig holds the MQTTBridge settings.
type BridgeConfig struct {
	// AckTimeout bounds how long MoveArm waits for the arm's acknowledgement.
	AckTimeout time.Duration

	// StaleAfter is the age after which a cached reading is unavailable.
	StaleAfter time.Duration

	// QoS is the subscription QoS.
	QoS byte
}

// MQTTBridge talks to sensor and actuator nodes over MQTT.
//
// Sensor values are pushed by the nodes and cached; Read serves the cache.
// Actuator commands are published fire-and-forget except arm moves, which
// wait for an acknowledgement carrying the command id.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type MQTTBridge struct {
	bus    Bus
	cfg    BridgeConfig
	clock  clockwork.Clock
	logger Logger

	mu      sync.RWMutex
	samples map[device.Ref]*sample

	pendingMu sync.Mutex
	pending   map[string]chan Ack
}

// NewMQTTBridge creates a bridge. Call Start to subscribe.
//
// Parameters:
//   - bus: Connected MQTT client
//   - cfg: Timeouts and QoS
//   - clock: Time source for staleness; nil uses the real clock
//   - logger: Optional; nil discards
func NewMQTTBridge(bus Bus, cfg BridgeConfig, clock clockwork.Clock, logger Logger) *MQTTBridge {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTBridge{
		bus:     bus,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		samples: make(map[device.Ref]*sample),
		pending: make(map[string]chan Ack),
	}
}

// Start subscribes to the sensor and acknowledgement topics.
func (b *MQTTBridge) Start() error {
	if err := b.bus.Subscribe(mqtt.Topics{}.AllSensors(), b.cfg.QoS, b.handleSensor); err != nil {
		return fmt.Errorf("subscribing to sensors: %w", err)
	}
	if err := b.bus.Subscribe(mqtt.Topics{}.AllAcks(), b.cfg.QoS, b.handleAck); err != nil {
		return fmt.Errorf("subscribing to acks: %w", err)
	}
	return nil
}

func (b *MQTTBridge) handleSensor(topic string, payload []byte) error {
	_, ref, err := mqtt.ParseDeviceTopic(topic)
	if err != nil {
		return err
	}

	var msg SensorMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding %s sensor message: %w", ref, err)
	}
	if msg.Value == nil && msg.FanRPM == nil {
		return fmt.Errorf("%s sensor message carries no value", ref)
	}

	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.samples[ref]
	if !ok {
		s = &sample{}
		b.samples[ref] = s
	}
	if msg.Value != nil {
		s.value, s.valueAt = msg.Value, now
	}
	if msg.FanRPM != nil {
		s.rpm, s.rpmAt = msg.FanRPM, now
	}
	return nil
}

func (b *MQTTBridge) handleAck(topic string, payload []byte) error {
	var ack Ack
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("decoding ack on %s: %w", topic, err)
	}

	b.pendingMu.Lock()
	ch, ok := b.pending[ack.ID]
	b.pendingMu.Unlock()
	if !ok {
		b.logger.Debug("ack without pending command", "topic", topic, "command_id", ack.ID)
		return nil
	}

	select {
	case ch <- ack:
	default:
	}
	return nil
}

// Read returns the cached value of a device, or ErrSensorUnavailable when
// none has arrived within the staleness window.
func (b *MQTTBridge) Read(_ context.Context, kind device.Kind, id int) (float64, error) {
	ref := device.Ref{Kind: kind, ID: id}

	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.samples[ref]
	if !ok || s.value == nil {
		return 0, fmt.Errorf("%w: %s: no reading received", ErrSensorUnavailable, ref)
	}
	if age := b.clock.Since(s.valueAt); age > b.cfg.StaleAfter {
		return 0, fmt.Errorf("%w: %s: last reading is %v old", ErrSensorUnavailable, ref, age.Round(time.Second))
	}
	return *s.value, nil
}

// ReadFanRPM returns the cached fan speed of an Air station.
func (b *MQTTBridge) ReadFanRPM(_ context.Context, airID int) (float64, error) {
	ref := device.Ref{Kind: device.KindAir, ID: airID}

	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.samples[ref]
	if !ok || s.rpm == nil {
		return 0, fmt.Errorf("%w: %s: no fan rpm received", ErrSensorUnavailable, ref)
	}
	if age := b.clock.Since(s.rpmAt); age > b.cfg.StaleAfter {
		return 0, fmt.Errorf("%w: %s: last fan rpm is %v old", ErrSensorUnavailable, ref, age.Round(time.Second))
	}
	return *s.rpm, nil
}

func (b *MQTTBridge) newCommand(action string) Command {
	return Command{
		ID:        uuid.NewString(),
		Action:    action,
		Timestamp: b.clock.Now().UTC().Format(time.RFC3339),
	}
}

func (b *MQTTBridge) send(ref device.Ref, cmd Command) error {
	if err := b.bus.PublishJSON(mqtt.Topics{}.Command(ref), cmd, false); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrActuatorFault, cmd.Action, ref, err)
	}
	b.logger.Debug("actuator command sent", "device", ref.String(), "action", cmd.Action, "command_id", cmd.ID)
	return nil
}

// MoveArm publishes a move command and waits for the arm's acknowledgement.
//
// Returns:
//   - error: ErrActuatorFault (wrapped) on publish failure, negative ack or
//     ack timeout; the context error when ctx ends first
func (b *MQTTBridge) MoveArm(ctx context.Context, armID, x, y, z int) error {
	ref := device.Ref{Kind: device.KindArm, ID: armID}
	cmd := b.newCommand(ActionMove)
	cmd.X, cmd.Y, cmd.Z = &x, &y, &z

	acks := make(chan Ack, 1)
	b.pendingMu.Lock()
	b.pending[cmd.ID] = acks
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, cmd.ID)
		b.pendingMu.Unlock()
	}()

	if err := b.send(ref, cmd); err != nil {
		return err
	}

	select {
	case ack := <-acks:
		if !ack.OK {
			return fmt.Errorf("%w: %s rejected move to (%d,%d,%d): %s", ErrActuatorFault, ref, x, y, z, ack.Error)
		}
		return nil
	case <-b.clock.After(b.cfg.AckTimeout):
		return fmt.Errorf("%w: %s: no acknowledgement within %v", ErrActuatorFault, ref, b.cfg.AckTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetPump switches a pump.
func (b *MQTTBridge) SetPump(_ context.Context, pumpID int, on bool) error {
	cmd := b.newCommand(ActionPump)
	cmd.On = &on
	return b.send(device.Ref{Kind: device.KindPump, ID: pumpID}, cmd)
}

// SetLamp switches a Light station's lamp.
func (b *MQTTBridge) SetLamp(_ context.Context, lightID int, on bool) error {
	cmd := b.newCommand(ActionLamp)
	cmd.On = &on
	return b.send(device.Ref{Kind: device.KindLight, ID: lightID}, cmd)
}

// SetFan sets an Air station's fan mode.
func (b *MQTTBridge) SetFan(_ context.Context, airID int, mode alert.FanMode) error {
	cmd := b.newCommand(ActionFan)
	cmd.Mode = mode.String()
	return b.send(device.Ref{Kind: device.KindAir, ID: airID}, cmd)
}
