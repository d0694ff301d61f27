package alarm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/ezan-vakti/internal/observability"
)

// MQTT topics under the configured prefix.
const (
	topicSchedule = "schedule"
	topicNotify   = "notify"
	topicCancel   = "cancel"
	topicFired    = "fired"
)

const mqttWait = 5 * time.Second

// MQTTOptions configures a broker connection.
type MQTTOptions struct {
	Broker   string
	ClientID string
	// TopicPrefix, e.g. "ezan/phone-1".
	TopicPrefix string
}

// MQTTHost bridges alarms to a device over MQTT: registrations are
// published for the device to arm, and the device publishes fired
// payloads back.
type MQTTHost struct {
	client mqtt.Client
	prefix string
	logger *zerolog.Logger

	mu      sync.Mutex
	pending map[int64]Registration
	events  chan HostEvent
}

// DialMQTT connects to the broker and returns a subscribed MQTTHost.
func DialMQTT(opts MQTTOptions, logger *zerolog.Logger) (*MQTTHost, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.OnConnect = func(mqtt.Client) {
		logger.Info().Str("broker", opts.Broker).Msg("connected to MQTT broker")
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(co)
	if err := wait(client.Connect()); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", opts.Broker, err)
	}

	h, err := NewMQTTHost(client, opts.TopicPrefix, logger)
	if err != nil {
		client.Disconnect(250)
		return nil, err
	}
	return h, nil
}

// NewMQTTHost wraps a connected client and subscribes to fired events.
func NewMQTTHost(client mqtt.Client, prefix string, logger *zerolog.Logger) (*MQTTHost, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	h := &MQTTHost{
		client:  client,
		prefix:  prefix,
		logger:  logger,
		pending: make(map[int64]Registration),
		events:  make(chan HostEvent, 16),
	}

	token := client.Subscribe(h.topic(topicFired), 1, h.onFired)
	if err := wait(token); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", h.topic(topicFired), err)
	}
	return h, nil
}

func (h *MQTTHost) topic(name string) string {
	return h.prefix + "/" + name
}

func (h *MQTTHost) onFired(_ mqtt.Client, msg mqtt.Message) {
	var p Payload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		h.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("ignoring malformed fired message")
		return
	}

	h.mu.Lock()
	for id, r := range h.pending {
		if r.Payload == p && !r.FireAt.After(time.Now()) {
			delete(h.pending, id)
		}
	}
	h.mu.Unlock()

	select {
	case h.events <- HostEvent{Payload: p, At: time.Now()}:
	default:
		h.logger.Warn().Str(observability.FieldPrayer, p.Prayer).Msg("host event dropped, consumer too slow")
	}
}

func (h *MQTTHost) publish(name string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", name, err)
	}
	if err := wait(h.client.Publish(h.topic(name), 1, false, body)); err != nil {
		return fmt.Errorf("publishing to %s: %w", h.topic(name), err)
	}
	return nil
}

// Schedule publishes r for the device to arm.
func (h *MQTTHost) Schedule(_ context.Context, r Registration) error {
	if err := h.publish(topicSchedule, r); err != nil {
		return err
	}
	h.mu.Lock()
	h.pending[r.ID] = r
	h.mu.Unlock()
	return nil
}

// Notify publishes r as a plain notification.
func (h *MQTTHost) Notify(_ context.Context, r Registration) error {
	if err := h.publish(topicNotify, r); err != nil {
		return err
	}
	h.mu.Lock()
	h.pending[r.ID] = r
	h.mu.Unlock()
	return nil
}

// CancelAll tells the device to drop every alarm.
func (h *MQTTHost) CancelAll(_ context.Context) error {
	if err := h.publish(topicCancel, struct {
		All bool `json:"all"`
	}{All: true}); err != nil {
		return err
	}
	h.mu.Lock()
	h.pending = make(map[int64]Registration)
	h.mu.Unlock()
	return nil
}

// Pending returns what was published and has not fired or passed.
func (h *MQTTHost) Pending(_ context.Context) ([]Registration, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	out := make([]Registration, 0, len(h.pending))
	for id, r := range h.pending {
		if r.FireAt.Before(now) {
			delete(h.pending, id)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Events returns fired payloads published by the device.
func (h *MQTTHost) Events() <-chan HostEvent {
	return h.events
}

// Close unsubscribes and disconnects. The client is disconnected even
// when the unsubscribe fails.
func (h *MQTTHost) Close() error {
	err := wait(h.client.Unsubscribe(h.topic(topicFired)))
	h.client.Disconnect(250)
	if err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", h.topic(topicFired), err)
	}
	return nil
}

// ErrMQTTTimeout is returned when the broker does not complete an
// operation within the wait window.
var ErrMQTTTimeout = errors.New("MQTT operation timed out")

func wait(t mqtt.Token) error {
	if !t.WaitTimeout(mqttWait) {
		return fmt.Errorf("%w after %s", ErrMQTTTimeout, mqttWait)
	}
	return t.Error()
}
