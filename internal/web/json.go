package web

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/sampler"
	"github.com/sweeney/button-sensor/internal/status"
)

var json jsoniter.API = jsoniter.ConfigCompatibleWithStandardLibrary

// BlinkResponse is the reply to POST /blink.
type BlinkResponse struct {
	Blink BlinkInner `json:"blink"`
}

// BlinkInner reports whether the request was accepted.
type BlinkInner struct {
	Count    int    `json:"count"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

func formatBlinkResponse(count int, err error) []byte {
	inner := BlinkInner{Count: count, Accepted: err == nil}
	if err != nil {
		inner.Error = err.Error()
	}
	data, _ := json.Marshal(BlinkResponse{Blink: inner})
	return data
}

// Frame is one live feed message. Type is "status", "event" or "sample".
type Frame struct {
	Type   string              `json:"type"`
	Status *status.StatusInner `json:"status,omitempty"`
	Event  *EventFrame         `json:"event,omitempty"`
	Sample *SampleFrame        `json:"sample,omitempty"`
}

// EventFrame carries a controller event.
type EventFrame struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Pin       int    `json:"pin,omitempty"`
	HeldMs    int64  `json:"held_ms,omitempty"`
	Blinks    int    `json:"blinks,omitempty"`
}

// SampleFrame carries a sampler reading.
type SampleFrame struct {
	Kind      string  `json:"kind"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Timestamp string  `json:"timestamp"`
	Error     string  `json:"error,omitempty"`
}

// FormatStatusFrame encodes a status snapshot for the live feed.
func FormatStatusFrame(snap status.Snapshot) []byte {
	inner := status.Build(snap)
	data, _ := json.Marshal(Frame{Type: "status", Status: &inner})
	return data
}

// FormatEventFrame encodes a controller event for the live feed.
func FormatEventFrame(ev logic.Event) []byte {
	data, _ := json.Marshal(Frame{
		Type: "event",
		Event: &EventFrame{
			Type:      string(ev.Type),
			Timestamp: ev.Timestamp.UTC().Format(time.RFC3339Nano),
			Pin:       int(ev.Pin),
			HeldMs:    ev.Held.Milliseconds(),
			Blinks:    ev.Blinks,
		},
	})
	return data
}

// FormatSampleFrame encodes a sampler reading for the live feed.
func FormatSampleFrame(s sampler.Sample) []byte {
	f := &SampleFrame{
		Kind:      s.Kind.String(),
		Value:     s.Value,
		Unit:      s.Unit,
		Timestamp: s.Time.UTC().Format(time.RFC3339Nano),
	}
	if s.Err != nil {
		f.Error = s.Err.Error()
	}
	data, _ := json.Marshal(Frame{Type: "sample", Sample: f})
	return data
}
