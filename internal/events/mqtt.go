package events

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes each event as JSON on "<prefix>/<topic>".
type MQTTSink struct {
	client mqttPublisher
	prefix string
	log    *slog.Logger
}

// DialMQTT connects to broker and returns a sink publishing under prefix.
func DialMQTT(broker, clientID, prefix string, log *slog.Logger) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "mqtt connect to %s", broker)
	}
	return NewMQTTSink(client, prefix, log), nil
}

func NewMQTTSink(client mqttPublisher, prefix string, log *slog.Logger) *MQTTSink {
	if log == nil {
		log = slog.Default()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "arena"
	}
	return &MQTTSink{
		client: client,
		prefix: prefix,
		log:    log.With(slog.String("component", "mqtt_sink")),
	}
}

func (m *MQTTSink) Topic(ev Event) string {
	return m.prefix + "/" + ev.Topic
}

// Deliver does not wait for the broker acknowledgement.
func (m *MQTTSink) Deliver(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		m.log.Error("mqtt_sink_encode_err", slog.Any("err", err))
		return
	}
	token := m.client.Publish(m.Topic(ev), 0, false, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			m.log.Warn("mqtt_sink_publish_err", slog.Any("err", token.Error()), slog.String("topic", ev.Topic))
		}
	}()
}

func (m *MQTTSink) Close() {
	m.client.Disconnect(250)
}
