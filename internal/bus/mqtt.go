package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

const (
	mqttConnectTimeout = 30 * time.Second
	mqttPublishTimeout = 10 * time.Second
)

// MQTTBus implements EventBus on an MQTT broker. Dotted topics are
// mapped to slash-separated MQTT topics. Request-reply is not supported.
type MQTTBus struct {
	mu            sync.Mutex
	client        mqtt.Client
	qos           byte
	broker        string
	subscriptions map[string]*mqttSubscription
}

type mqttSubscription struct {
	id    string
	bus   *MQTTBus
	topic string
}

// NewMQTTBus connects to the configured broker.
func NewMQTTBus(cfg domain.EventBusConfig) (*MQTTBus, error) {
	if cfg.MQTTBroker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if cfg.MQTTQoS > 2 {
		return nil, fmt.Errorf("invalid mqtt qos %d", cfg.MQTTQoS)
	}
	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = "snapnearn-" + uuid.New().String()[:8]
	}

	b := &MQTTBus{
		qos:           cfg.MQTTQoS,
		broker:        cfg.MQTTBroker,
		subscriptions: make(map[string]*mqttSubscription),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(b.onConnectionLost)

	b.client = mqtt.NewClient(opts)

	token := b.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection error: %w", err)
	}

	return b, nil
}

// mqttTopic converts "snapnearn.report.submitted" into
// "snapnearn/report/submitted".
func mqttTopic(topic string) string {
	return strings.ReplaceAll(topic, ".", "/")
}

// Publish sends an enveloped message to the broker.
func (b *MQTTBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if !b.client.IsConnected() {
		return fmt.Errorf("not connected to MQTT broker")
	}

	data, err := envelope(topic, payload)
	if err != nil {
		return err
	}

	token := b.client.Publish(mqttTopic(topic), b.qos, false, data)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt publish timeout for %s", topic)
	}
	return token.Error()
}

// Subscribe registers a handler for a topic.
func (b *MQTTBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	token := b.client.Subscribe(mqttTopic(topic), b.qos, func(_ mqtt.Client, m mqtt.Message) {
		msg, err := openEnvelope(m.Payload())
		if err != nil {
			slog.Error("failed to unmarshal MQTT message",
				"topic", m.Topic(),
				"error", err,
			)
			return
		}
		if err := handler(ctx, msg); err != nil {
			slog.Error("handler error",
				"topic", m.Topic(),
				"message_id", msg.ID,
				"error", err,
			)
		}
	})
	if !token.WaitTimeout(mqttPublishTimeout) {
		return nil, fmt.Errorf("mqtt subscribe timeout for %s", topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	sub := &mqttSubscription{id: uuid.New().String(), bus: b, topic: topic}
	b.mu.Lock()
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()
	return sub, nil
}

// Request is not available on MQTT 3.1.1.
func (b *MQTTBus) Request(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	return nil, fmt.Errorf("request-reply is not supported on the mqtt bus")
}

// Ping reports whether the client holds a live broker connection.
func (b *MQTTBus) Ping(ctx context.Context) error {
	if !b.client.IsConnectionOpen() {
		return fmt.Errorf("MQTT not connected")
	}
	return nil
}

// Close disconnects from the broker.
func (b *MQTTBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscriptions {
		b.client.Unsubscribe(mqttTopic(sub.topic)).WaitTimeout(time.Second)
	}
	b.subscriptions = make(map[string]*mqttSubscription)

	if b.client.IsConnected() {
		b.client.Disconnect(250)
	}
	return nil
}

func (b *MQTTBus) onConnect(_ mqtt.Client) {
	slog.Info("MQTT connected", "broker", b.broker)
}

func (b *MQTTBus) onConnectionLost(_ mqtt.Client, err error) {
	slog.Warn("MQTT connection lost", "broker", b.broker, "error", err)
}

// Unsubscribe removes the subscription.
func (s *mqttSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subscriptions, s.id)
	s.bus.mu.Unlock()

	token := s.bus.client.Unsubscribe(mqttTopic(s.topic))
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt unsubscribe timeout for %s", s.topic)
	}
	return token.Error()
}

// Topic returns the subscribed topic.
func (s *mqttSubscription) Topic() string {
	return s.topic
}
