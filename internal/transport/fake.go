package transport

import (
	"encoding/json"
	"sync"
)

// Fake is an in-memory Client for tests. It records everything published and
// delivers injected messages to registered handlers synchronously.
type Fake struct {
	mu sync.Mutex

	// PublishError, when set, is returned by every publish method.
	PublishError error

	IrrigationCommands []IrrigationCommand
	FertilizerCommands []FertilizerCommand
	SensorValues       []PublishedSensor
	Events             []PublishedEvent

	subs []subscription
	hook EventHook
}

// PublishedSensor is a recorded sensor republish.
type PublishedSensor struct {
	Topic   string
	Payload SensorPayload
}

// PublishedEvent is a recorded trail event.
type PublishedEvent struct {
	Topic string
	Event Event
}

type subscription struct {
	filter  string
	handler Handler
}

// NewFake returns an empty fake client.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) PublishIrrigationCommand(cmd IrrigationCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.IrrigationCommands = append(f.IrrigationCommands, cmd)
	return nil
}

func (f *Fake) PublishFertilizerCommand(cmd FertilizerCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.FertilizerCommands = append(f.FertilizerCommands, cmd)
	return nil
}

func (f *Fake) PublishSensorValue(topic string, p SensorPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.SensorValues = append(f.SensorValues, PublishedSensor{Topic: topic, Payload: p})
	return nil
}

func (f *Fake) PublishJobEvent(event string, data interface{}) error {
	return f.record(JobEventTopic(event), NewEvent(event, "", data))
}

func (f *Fake) PublishZoneEvent(zoneID, event string, data interface{}) error {
	return f.record(ZoneEventTopic(zoneID, event), NewEvent(event, zoneID, data))
}

func (f *Fake) PublishIrrigationEvent(zoneID, event string, data interface{}) error {
	return f.record(IrrigationEventTopic(zoneID, event), NewEvent(event, zoneID, data))
}

func (f *Fake) Subscribe(filter string, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, subscription{filter: filter, handler: h})
	return nil
}

func (f *Fake) SetEventHook(hook EventHook) {
	f.mu.Lock()
	f.hook = hook
	f.mu.Unlock()
}

func (f *Fake) Close() error { return nil }

// Inject delivers a raw message to every matching subscription, as if it
// arrived from the broker.
func (f *Fake) Inject(topic string, payload []byte) {
	f.mu.Lock()
	subs := make([]subscription, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, s := range subs {
		if TopicMatches(s.filter, topic) {
			s.handler(Message{Topic: topic, Payload: payload})
		}
	}
}

// InjectJSON marshals a value and delivers it to matching subscriptions.
func (f *Fake) InjectJSON(topic string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.Inject(topic, data)
}

// EventNames returns the recorded trail event names in publish order.
func (f *Fake) EventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.Events))
	for i, e := range f.Events {
		names[i] = e.Event.Event
	}
	return names
}

// HasEvent reports whether an event with the given name was published.
func (f *Fake) HasEvent(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.Events {
		if e.Event.Event == name {
			return true
		}
	}
	return false
}

func (f *Fake) record(topic string, ev Event) error {
	f.mu.Lock()
	if f.PublishError != nil {
		f.mu.Unlock()
		return f.PublishError
	}
	f.Events = append(f.Events, PublishedEvent{Topic: topic, Event: ev})
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(topic, ev)
	}
	return nil
}
