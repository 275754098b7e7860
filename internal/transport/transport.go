// Package transport defines the MQTT topic layout and payload schemas for
// the irrigation controller, with an abstraction over the broker connection
// so the control loop can be tested without one.
package transport

import (
	"encoding/json"
	"time"
)

// Telemetry topics published by field sensors.
const (
	TopicNitrogen    = "sensors/soil/npk/nitrogen"
	TopicPhosphorus  = "sensors/soil/npk/phosphorus"
	TopicPotassium   = "sensors/soil/npk/potassium"
	TopicMoisture    = "sensors/soil/moisture"
	TopicSoilTemp    = "sensors/soil/temperature"
	TopicAirTemp     = "sensors/air/temperature"
	TopicHumidity    = "sensors/air/humidity"
	TopicWaterLevel  = "sensors/water/level"
	TopicRainfall    = "sensors/rainfall"
	TopicSensorsRoot = "sensors/#"
)

// Actuator command channels.
const (
	TopicIrrigationCommand = "actuators/irrigation/command"
	TopicFertilizerCommand = "actuators/fertilizer/command"
)

// JobEventTopic returns the topic for a job-level lifecycle event.
func JobEventTopic(event string) string {
	return "irrigation/job/" + event
}

// ZoneEventTopic returns the topic for a zone-level event.
func ZoneEventTopic(zoneID, event string) string {
	return "irrigation/zones/" + zoneID + "/" + event
}

// IrrigationEventTopic returns the topic for an irrigation execution event.
func IrrigationEventTopic(zoneID, event string) string {
	return "irrigation/events/" + zoneID + "/" + event
}

// SensorPayload is the common telemetry message shape. Sensor categories
// populate different subsets: NPK and moisture carry value/unit/depth,
// humidity carries the DHT fields, water level the reservoir fields.
type SensorPayload struct {
	Timestamp string   `json:"timestamp"`
	ZoneID    string   `json:"zone_id,omitempty"`
	SensorID  string   `json:"sensor_id,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	DepthCM   *int     `json:"depth_cm,omitempty"`
	Source    string   `json:"source,omitempty"`

	// Humidity sensor extras (DHT22 style).
	Humidity    *float64 `json:"humidity,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	HeatIndex   *float64 `json:"heat_index,omitempty"`
	DewPoint    *float64 `json:"dew_point,omitempty"`

	// Water reservoir extras.
	CurrentLiters  *float64 `json:"current_liters,omitempty"`
	CapacityLiters *float64 `json:"capacity_liters,omitempty"`
	LevelPercent   *float64 `json:"level_percent,omitempty"`
	WaterHeightCM  *float64 `json:"water_height_cm,omitempty"`
	TankStatus     string   `json:"tank_status,omitempty"`
}

// IrrigationCommand is published to the irrigation actuator channel.
type IrrigationCommand struct {
	CommandID string  `json:"command_id"`
	ZoneID    string  `json:"zone_id"`
	AmountMM  float64 `json:"amount_mm"`
	Timestamp string  `json:"timestamp"`
	Automated bool    `json:"automated"`
}

// FertilizerCommand is published to the fertilizer actuator channel.
type FertilizerCommand struct {
	CommandID string  `json:"command_id"`
	ZoneID    string  `json:"zone_id"`
	Nutrient  string  `json:"nutrient"` // N, P or K
	AmountKg  float64 `json:"amount_kg"`
	Timestamp string  `json:"timestamp"`
	Automated bool    `json:"automated"`
}

// Event is an entry in the published event trail.
type Event struct {
	Event     string      `json:"event"`
	ZoneID    string      `json:"zone_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Message is an inbound broker message.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler processes an inbound message. Handlers must not panic; a slow
// handler blocks delivery of subsequent messages on the same subscription.
type Handler func(msg Message)

// EventHook observes every event published to the trail. Used to feed the
// in-process websocket stream without a broker round trip.
type EventHook func(topic string, ev Event)

// Publisher is the outbound half of the broker connection.
type Publisher interface {
	// PublishIrrigationCommand sends an irrigation command to the actuator channel.
	PublishIrrigationCommand(cmd IrrigationCommand) error

	// PublishFertilizerCommand sends a fertilizer command to the actuator channel.
	PublishFertilizerCommand(cmd FertilizerCommand) error

	// PublishSensorValue republishes a derived sensor value (e.g. post-pump moisture).
	PublishSensorValue(topic string, p SensorPayload) error

	// PublishJobEvent appends a job-level event to the trail.
	PublishJobEvent(event string, data interface{}) error

	// PublishZoneEvent appends a zone-level event to the trail.
	PublishZoneEvent(zoneID, event string, data interface{}) error

	// PublishIrrigationEvent appends an irrigation execution event to the trail.
	PublishIrrigationEvent(zoneID, event string, data interface{}) error
}

// Client is a full broker connection: publish, subscribe, lifecycle.
type Client interface {
	Publisher

	// Subscribe registers a handler for a topic filter ('#' wildcards allowed).
	Subscribe(filter string, h Handler) error

	// SetEventHook installs an observer for published trail events.
	SetEventHook(hook EventHook)

	// Close disconnects from the broker.
	Close() error
}

// NewEvent builds a trail event stamped with the current UTC time.
func NewEvent(event, zoneID string, data interface{}) Event {
	return Event{
		Event:     event,
		ZoneID:    zoneID,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// EncodeEvent marshals a trail event payload.
func EncodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// TopicMatches reports whether a concrete topic matches an MQTT filter with
// '+' and '#' wildcards.
func TopicMatches(filter, topic string) bool {
	if filter == topic {
		return true
	}
	fi, ti := 0, 0
	for fi < len(filter) {
		fs := nextSegment(filter, &fi)
		if fs == "#" {
			return true
		}
		if ti >= len(topic) {
			return false
		}
		ts := nextSegment(topic, &ti)
		if fs != "+" && fs != ts {
			return false
		}
	}
	return ti >= len(topic)
}

func nextSegment(s string, i *int) string {
	start := *i
	for *i < len(s) && s[*i] != '/' {
		*i++
	}
	seg := s[start:*i]
	if *i < len(s) {
		*i++ // skip '/'
	}
	return seg
}
