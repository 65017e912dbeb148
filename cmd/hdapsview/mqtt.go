package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// rotationMessage is the MQTT payload published on every drawn frame.
type rotationMessage struct {
	AngleX int       `json:"angle_x"`
	AngleY int       `json:"angle_y"`
	Ts     time.Time `json:"ts"`
}

// mqttPublisher is the subset of mqtt.Client used by the sink.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// mqttSink publishes each frame's rotation to a broker topic.
// Publishing never waits for the broker acknowledgement.
type mqttSink struct {
	client   mqttPublisher
	topic    string
	qos      byte
	retained bool
	logger   *slog.Logger
}

const mqttConnectTimeout = 5 * time.Second

// connectMQTT dials the broker and returns a connected client.
func connectMQTT(cfg MQTTConfig, logger *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			logger.Info("mqtt connected", "broker", cfg.Broker)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}
	return client, nil
}

func newMQTTSink(client mqttPublisher, cfg MQTTConfig, logger *slog.Logger) *mqttSink {
	return &mqttSink{
		client:   client,
		topic:    cfg.Topic,
		qos:      cfg.QoS,
		retained: cfg.Retained,
		logger:   logger,
	}
}

func (s *mqttSink) Name() string { return "mqtt" }

func (s *mqttSink) Draw(f Frame) error {
	at := f.At
	if at.IsZero() {
		at = time.Now()
	}
	payload, err := json.Marshal(rotationMessage{AngleX: f.AngleX, AngleY: f.AngleY, Ts: at.UTC()})
	if err != nil {
		return fmt.Errorf("marshal rotation: %w", err)
	}

	token := s.client.Publish(s.topic, s.qos, s.retained, payload)
	go func() {
		if token.WaitTimeout(mqttConnectTimeout) && token.Error() != nil {
			s.logger.Warn("mqtt publish failed", "topic", s.topic, "error", token.Error())
		}
	}()
	return nil
}
