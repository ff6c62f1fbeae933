// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/hive-heater/internal/event"
	"github.com/sweeney/hive-heater/internal/state"
	"github.com/sweeney/hive-heater/internal/status"
)

// Topic is the MQTT topic for control events.
const Topic = "hive/heater/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "hive/heater/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a control event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event HeaterEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// HeaterEvent is a bus event stamped with the time and the system state
// at the moment it was observed.
type HeaterEvent struct {
	Timestamp time.Time
	Event     event.Event
	State     state.State
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Heater HeaterPayload `json:"heater"`
}

// HeaterPayload contains the control event details. Zone and Temperature
// are set for temperature events only, Program for program events only.
type HeaterPayload struct {
	Timestamp   string   `json:"timestamp"`
	Event       string   `json:"event"`
	State       string   `json:"state"`
	Zone        *int     `json:"zone,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Program     string   `json:"program,omitempty"`
}

// FormatPayload creates the JSON payload for a control event.
func FormatPayload(e HeaterEvent) ([]byte, error) {
	p := HeaterPayload{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		Event:     e.Event.Kind.String(),
		State:     e.State.String(),
	}
	switch {
	case e.Event.Kind.IsTemperature():
		zone := e.Event.Zone
		p.Zone = &zone
		p.Temperature = status.Degrees(e.Event.Temperature)
	case e.Event.Kind.IsProgram():
		p.Program = e.Event.Program.Name
	}
	return json.Marshal(Payload{Heater: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
