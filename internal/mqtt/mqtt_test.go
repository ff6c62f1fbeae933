package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/hive-heater/internal/event"
	"github.com/sweeney/hive-heater/internal/program"
	"github.com/sweeney/hive-heater/internal/state"
)

var ts = time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)

func TestFormatPayloadTemperatureEvent(t *testing.T) {
	e := HeaterEvent{
		Timestamp: ts,
		Event:     event.ForZone(event.TemperatureAlert, 1, 465),
		State:     state.Error,
	}

	payload, err := FormatPayload(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"heater":{"timestamp":"2026-02-10T14:30:00Z","event":"TEMPERATURE_ALERT","state":"error","zone":1,"temperature":46.5}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadProgramEvent(t *testing.T) {
	e := HeaterEvent{
		Timestamp: ts,
		Event:     event.ForProgram(event.ProgramStart, program.Program{Name: "Varroa Killer", Running: true}),
		State:     state.PreHeat,
	}

	payload, err := FormatPayload(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"heater":{"timestamp":"2026-02-10T14:30:00Z","event":"PROGRAM_START","state":"pre-heating","program":"Varroa Killer"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadZoneZeroIsKept(t *testing.T) {
	payload, _ := FormatPayload(HeaterEvent{Timestamp: ts, Event: event.ForZone(event.TemperatureHigh, 0, 445)})

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if z, ok := raw["heater"]["zone"]; !ok || z != float64(0) {
		t.Errorf("zone: got %v (present=%v), want 0", z, ok)
	}
	if _, ok := raw["heater"]["program"]; ok {
		t.Error("program should be omitted for temperature events")
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	e := HeaterEvent{
		Timestamp: time.Date(2026, 2, 10, 9, 30, 0, 0, loc),
		Event:     event.ForZone(event.TemperatureNormal, 0, 430),
	}

	payload, _ := FormatPayload(e)
	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Heater.Timestamp != "2026-02-10T14:30:00Z" {
		t.Errorf("timestamp not converted to UTC: %s", parsed.Heater.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "hive/heater/events" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "hive/heater/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	tests := []struct {
		name  string
		event SystemEvent
		want  string
	}{
		{
			"will",
			SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT"},
			`{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`,
		},
		{
			"reconnected omits reason",
			SystemEvent{Timestamp: ts, Event: "RECONNECTED"},
			`{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`,
		},
		{
			"raw payload passes through",
			SystemEvent{Timestamp: ts, Event: "HEARTBEAT", RawPayload: []byte(`{"status":{}}`)},
			`{"status":{}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatSystemPayload(tt.event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got:  %s\nwant: %s", got, tt.want)
			}
		})
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	e1 := HeaterEvent{Timestamp: ts, Event: event.ForZone(event.TemperatureHigh, 0, 445), State: state.Running}
	e2 := HeaterEvent{Timestamp: ts.Add(time.Second), Event: event.ForZone(event.TemperatureNormal, 0, 430), State: state.Running}
	if err := f.Publish(e1); err != nil {
		t.Fatal(err)
	}
	if err := f.Publish(e2); err != nil {
		t.Fatal(err)
	}
	if err := f.PublishSystem(SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Reason: "SIGTERM", Retained: true}); err != nil {
		t.Fatal(err)
	}

	if len(f.Events) != 2 || len(f.Payloads) != 2 {
		t.Fatalf("expected 2 events, got %d", len(f.Events))
	}
	if f.Events[0].Event.Kind != event.TemperatureHigh || f.Events[1].Event.Kind != event.TemperatureNormal {
		t.Error("events out of order")
	}
	if len(f.SystemEvents) != 1 || !f.SystemEvents[0].Retained {
		t.Errorf("system events: %+v", f.SystemEvents)
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	if err := f.Publish(HeaterEvent{Timestamp: ts}); err == nil {
		t.Error("expected publish error")
	}
	if err := f.PublishSystem(SystemEvent{Timestamp: ts}); err == nil {
		t.Error("expected publish system error")
	}
	if len(f.Events) != 0 || len(f.SystemEvents) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(HeaterEvent{Timestamp: ts})
	f.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP"})
	f.Close()
	f.Connected = true

	f.Reset()

	if len(f.Events) != 0 || len(f.SystemEvents) != 0 || f.Closed || f.Connected {
		t.Errorf("reset left state behind: %+v", f)
	}
	if err := f.Publish(HeaterEvent{Timestamp: ts}); err != nil {
		t.Errorf("publish after reset: %v", err)
	}
}
