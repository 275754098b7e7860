package transport

import (
	"testing"
)

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"sensors/#", "sensors/soil/moisture", true},
		{"sensors/#", "sensors/soil/npk/nitrogen", true},
		{"sensors/#", "actuators/irrigation/command", false},
		{"sensors/soil/moisture", "sensors/soil/moisture", true},
		{"sensors/soil/moisture", "sensors/soil/temperature", false},
		{"sensors/+/temperature", "sensors/soil/temperature", true},
		{"sensors/+/temperature", "sensors/air/temperature", true},
		{"sensors/+/temperature", "sensors/soil/npk/nitrogen", false},
		{"sensors/soil", "sensors/soil/moisture", false},
	}
	for _, tt := range tests {
		if got := TopicMatches(tt.filter, tt.topic); got != tt.want {
			t.Errorf("TopicMatches(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

func TestEventTopics(t *testing.T) {
	if got := JobEventTopic("job_started"); got != "irrigation/job/job_started" {
		t.Errorf("JobEventTopic = %q", got)
	}
	if got := ZoneEventTopic("zone-1", "metrics_gathered"); got != "irrigation/zones/zone-1/metrics_gathered" {
		t.Errorf("ZoneEventTopic = %q", got)
	}
	if got := IrrigationEventTopic("zone-1", "irrigation_started"); got != "irrigation/events/zone-1/irrigation_started" {
		t.Errorf("IrrigationEventTopic = %q", got)
	}
}

func TestFakeDeliversToMatchingSubscriptions(t *testing.T) {
	f := NewFake()

	var got []string
	if err := f.Subscribe("sensors/#", func(msg Message) {
		got = append(got, msg.Topic)
	}); err != nil {
		t.Fatal(err)
	}

	f.Inject(TopicMoisture, []byte(`{"value": 25}`))
	f.Inject(TopicIrrigationCommand, []byte(`{}`)) // no matching subscription

	if len(got) != 1 || got[0] != TopicMoisture {
		t.Errorf("delivered topics = %v, want [%s]", got, TopicMoisture)
	}
}

func TestFakeEventHook(t *testing.T) {
	f := NewFake()

	var hooked []string
	f.SetEventHook(func(topic string, ev Event) {
		hooked = append(hooked, ev.Event)
	})

	if err := f.PublishJobEvent("job_started", nil); err != nil {
		t.Fatal(err)
	}
	if err := f.PublishZoneEvent("zone-1", "zone_error", map[string]string{"error": "boom"}); err != nil {
		t.Fatal(err)
	}

	if len(hooked) != 2 || hooked[0] != "job_started" || hooked[1] != "zone_error" {
		t.Errorf("hooked events = %v", hooked)
	}
	if !f.HasEvent("zone_error") {
		t.Error("expected zone_error in recorded events")
	}
}
