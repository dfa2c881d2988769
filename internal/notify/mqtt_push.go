package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"rentpay-engine/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTPushSender delivers push notifications through the MQTT broker the
// tenant apps subscribe to. Each tenant listens on <topic>/<tenant_id>.
type MQTTPushSender struct {
	client mqtt.Client
	cfg    *config.MQTTConfig
	logger *zap.Logger
}

// NewMQTTPushSender connects to the broker and returns the push transport.
func NewMQTTPushSender(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTPushSender, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.Info("Connected to MQTT broker", zap.String("broker", cfg.Broker))
	return &MQTTPushSender{client: client, cfg: cfg, logger: logger}, nil
}

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send publishes the message to the recipient tenant's topic.
func (s *MQTTPushSender) Send(_ context.Context, msg Message) error {
	payload, err := json.Marshal(pushPayload{Title: msg.Subject, Body: msg.Body})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	topic := s.cfg.Topic + "/" + msg.Recipient
	if token := s.client.Publish(topic, s.cfg.QoS, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish push notification: %w", token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTPushSender) Close() {
	s.client.Disconnect(250)
}
