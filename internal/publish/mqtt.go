package publish

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/eventbus"
	"github.com/tiroq/focusflow/internal/log"
)

// MQTT publishes events to <topic_prefix>/<type>. Status events are
// retained so late subscribers see the current state, and
// <topic_prefix>/availability carries online/offline.
type MQTT struct {
	cfg    config.MQTTConfig
	client mqtt.Client
}

// NewMQTT configures a client for cfg. Nothing is dialled until Connect.
func NewMQTT(cfg config.MQTTConfig) *MQTT {
	m := &MQTT{cfg: cfg}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetWill(m.availabilityTopic(), "offline", cfg.QoS, true)
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	m.client = mqtt.NewClient(opts)
	return m
}

func newMQTTWithClient(cfg config.MQTTConfig, client mqtt.Client) *MQTT {
	return &MQTT{cfg: cfg, client: client}
}

// Connect starts connecting and waits until the first connection succeeds
// or ctx is done. On timeout the client keeps retrying in the background.
func (m *MQTT) Connect(ctx context.Context) error {
	token := m.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect to %s: %w", m.cfg.Broker, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt connect to %s: %w", m.cfg.Broker, ctx.Err())
	}
}

func (m *MQTT) onConnect(c mqtt.Client) {
	log.Info("mqtt connected", "broker", m.cfg.Broker)
	c.Publish(m.availabilityTopic(), m.cfg.QoS, true, "online")
}

// Topic returns the topic events of type t are published on.
func (m *MQTT) Topic(t eventbus.Type) string {
	return m.cfg.TopicPrefix + "/" + string(t)
}

func (m *MQTT) availabilityTopic() string {
	return m.cfg.TopicPrefix + "/availability"
}

// Send implements Sender.
func (m *MQTT) Send(ctx context.Context, ev eventbus.Event) error {
	if !m.client.IsConnected() {
		return ErrNotConnected
	}
	body, err := Encode(ev)
	if err != nil {
		return err
	}

	retained := ev.Type == eventbus.TypeStatus
	token := m.client.Publish(m.Topic(ev.Type), m.cfg.QoS, retained, body)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name implements Sender.
func (m *MQTT) Name() string { return "mqtt" }

// Close marks the publisher offline and disconnects.
func (m *MQTT) Close() error {
	if m.client.IsConnected() {
		token := m.client.Publish(m.availabilityTopic(), m.cfg.QoS, true, "offline")
		token.WaitTimeout(time.Second)
	}
	m.client.Disconnect(250)
	return nil
}
