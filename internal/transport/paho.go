package transport

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	commandQoS     = 1
	eventQoS       = 0
)

// MQTTClient is the broker-backed Client implementation.
type MQTTClient struct {
	client mqtt.Client

	mu   sync.RWMutex
	hook EventHook
}

// NewMQTTClient connects to the broker and returns a ready client. The
// client ID gets a random suffix so multiple controller instances can share
// a broker during development without kicking each other off.
func NewMQTTClient(broker, clientID string) (*MQTTClient, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("%s-%s", clientID, uuid.NewString()[:8])).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(true)

	opts.OnConnect = func(mqtt.Client) {
		log.Printf("mqtt: connected to %s", broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %v", err)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", broker, err)
	}
	return &MQTTClient{client: c}, nil
}

// Subscribe registers a handler for a topic filter.
func (m *MQTTClient) Subscribe(filter string, h Handler) error {
	token := m.client.Subscribe(filter, commandQoS, func(_ mqtt.Client, msg mqtt.Message) {
		h(Message{Topic: msg.Topic(), Payload: msg.Payload()})
	})
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt: subscribe %s timed out", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", filter, err)
	}
	return nil
}

// SetEventHook installs an observer invoked for every published trail event.
func (m *MQTTClient) SetEventHook(hook EventHook) {
	m.mu.Lock()
	m.hook = hook
	m.mu.Unlock()
}

// PublishIrrigationCommand sends an irrigation command at QoS 1.
func (m *MQTTClient) PublishIrrigationCommand(cmd IrrigationCommand) error {
	return m.publishJSON(TopicIrrigationCommand, commandQoS, cmd)
}

// PublishFertilizerCommand sends a fertilizer command at QoS 1.
func (m *MQTTClient) PublishFertilizerCommand(cmd FertilizerCommand) error {
	return m.publishJSON(TopicFertilizerCommand, commandQoS, cmd)
}

// PublishSensorValue republishes a derived sensor value.
func (m *MQTTClient) PublishSensorValue(topic string, p SensorPayload) error {
	return m.publishJSON(topic, eventQoS, p)
}

// PublishJobEvent appends a job-level event to the trail.
func (m *MQTTClient) PublishJobEvent(event string, data interface{}) error {
	return m.publishEvent(JobEventTopic(event), NewEvent(event, "", data))
}

// PublishZoneEvent appends a zone-level event to the trail.
func (m *MQTTClient) PublishZoneEvent(zoneID, event string, data interface{}) error {
	return m.publishEvent(ZoneEventTopic(zoneID, event), NewEvent(event, zoneID, data))
}

// PublishIrrigationEvent appends an irrigation execution event to the trail.
func (m *MQTTClient) PublishIrrigationEvent(zoneID, event string, data interface{}) error {
	return m.publishEvent(IrrigationEventTopic(zoneID, event), NewEvent(event, zoneID, data))
}

// Close disconnects from the broker, allowing in-flight work to drain.
func (m *MQTTClient) Close() error {
	m.client.Disconnect(1000)
	return nil
}

func (m *MQTTClient) publishEvent(topic string, ev Event) error {
	m.mu.RLock()
	hook := m.hook
	m.mu.RUnlock()
	if hook != nil {
		hook(topic, ev)
	}
	return m.publishJSON(topic, eventQoS, ev)
}

func (m *MQTTClient) publishJSON(topic string, qos byte, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mqtt: encode %s payload: %w", topic, err)
	}
	token := m.client.Publish(topic, qos, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: publish %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	return nil
}
