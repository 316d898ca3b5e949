// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/sampler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Topic is the MQTT topic for button, probe and blink events.
const Topic = "devices/button-sensor/events"

// TopicSamples is the MQTT topic for sampler readings.
const TopicSamples = "devices/button-sensor/samples"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "devices/button-sensor/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a controller event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSample sends a completed sampler reading.
	PublishSample(sample sampler.Sample) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
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
	Button ButtonPayload `json:"button"`
}

// ButtonPayload contains the controller event details.
type ButtonPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Pin       int    `json:"pin,omitempty"`
	HeldMs    int64  `json:"held_ms,omitempty"`
	Blinks    int    `json:"blinks,omitempty"`
}

// FormatPayload creates the JSON payload for a controller event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Button: ButtonPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Pin:       int(event.Pin),
			HeldMs:    event.Held.Milliseconds(),
			Blinks:    event.Blinks,
		},
	}
	return json.Marshal(payload)
}

// SamplePayload is the MQTT payload for a sampler reading.
type SamplePayload struct {
	Sample SampleInner `json:"sample"`
}

// SampleInner contains the reading. Value and Raw are omitted on error.
type SampleInner struct {
	Timestamp string   `json:"timestamp"`
	Kind      string   `json:"kind"`
	Value     *float64 `json:"value,omitempty"`
	Unit      string   `json:"unit"`
	Raw       *int64   `json:"raw,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// FormatSamplePayload creates the JSON payload for a sampler reading.
func FormatSamplePayload(sample sampler.Sample) ([]byte, error) {
	inner := SampleInner{
		Timestamp: sample.Time.UTC().Format(time.RFC3339),
		Kind:      sample.Kind.String(),
		Unit:      sample.Unit,
	}
	if sample.Err != nil {
		inner.Error = sample.Err.Error()
	} else {
		value, raw := sample.Value, sample.Raw
		inner.Value = &value
		inner.Raw = &raw
	}
	return json.Marshal(SamplePayload{Sample: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
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

// FormatWillPayload creates the last-will payload the broker publishes if
// the connection drops. It has no timestamp: the broker sends it later.
func FormatWillPayload() []byte {
	data, _ := json.Marshal(SystemPayload{
		System: SystemPayloadInner{Event: "OFFLINE", Reason: "connection lost"},
	})
	return data
}
