package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"energysense/internal/pipeline"
)

// Sink accepts decoded events for processing. *pipeline.Engine
// satisfies it.
type Sink interface {
	Ingest(ev pipeline.Event) bool
}

// MQTTSource subscribes to a telemetry topic and forwards every decoded
// reading into the sink.
type MQTTSource struct {
	client mqtt.Client
	topic  string
	sink   Sink
	log    *slog.Logger
	now    func() time.Time
}

func NewMQTTSource(brokerAddr, clientID, topic string, sink Sink, log *slog.Logger) (*MQTTSource, error) {
	if log == nil {
		log = slog.Default()
	}

	opts := mqtt.NewClientOptions().AddBroker(brokerAddr).SetClientID(clientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", brokerAddr, token.Error())
	}

	s := &MQTTSource{client: client, topic: topic, sink: sink, log: log, now: time.Now}

	if token := client.Subscribe(topic, 0, s.handle); token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("subscribing to %s: %w", topic, token.Error())
	}

	log.Info("mqtt source connected", "broker", brokerAddr, "topic", topic)
	return s, nil
}

func (s *MQTTSource) handle(_ mqtt.Client, msg mqtt.Message) {
	ev, err := decodeReading(msg.Payload(), s.now().UTC())
	if err != nil {
		s.log.Warn("skipping malformed mqtt event", "topic", msg.Topic(), "error", err)
		return
	}
	// A full queue is already logged by the sink.
	s.sink.Ingest(ev)
}

func (s *MQTTSource) Close() {
	s.client.Disconnect(250)
}

func decodeReading(payload []byte, now time.Time) (pipeline.Event, error) {
	var wire WireReading
	if err := json.Unmarshal(payload, &wire); err != nil {
		return pipeline.Event{}, fmt.Errorf("decoding event JSON: %w", err)
	}

	reading, err := wire.Reading(now)
	if err != nil {
		return pipeline.Event{}, err
	}

	return pipeline.Event{Reading: reading, Source: "mqtt"}, nil
}
