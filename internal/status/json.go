package status

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/sampler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Session       string        `json:"session"`
	LED           bool          `json:"led"`
	Counter       uint32        `json:"counter"`
	Channels      []ChannelJSON `json:"channels"`
	BlinkCount    int           `json:"blink_count,omitempty"`
	PendingBlinks int           `json:"pending_blinks,omitempty"`
	LastEvent     *EventJSON    `json:"last_event,omitempty"`
	Samples       SamplesJSON   `json:"samples"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"event_counts"`
	Drops         DropsJSON     `json:"dropped"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// ChannelJSON is one compare channel shadow.
type ChannelJSON struct {
	Channel int    `json:"channel"`
	Phase   string `json:"phase"`
	Target  uint32 `json:"target"`
}

// EventJSON is the most recent controller event.
type EventJSON struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Pin       int    `json:"pin,omitempty"`
	HeldMs    int64  `json:"held_ms,omitempty"`
	Blinks    int    `json:"blinks,omitempty"`
}

// SamplesJSON holds the latest reading of each kind.
type SamplesJSON struct {
	Temperature *SampleJSON `json:"temperature,omitempty"`
	Analog      *SampleJSON `json:"analog,omitempty"`
}

// SampleJSON is one reading.
type SampleJSON struct {
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Timestamp string  `json:"timestamp"`
	Error     string  `json:"error,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Presses      int `json:"presses"`
	Bounces      int `json:"bounces"`
	ShortPresses int `json:"short_presses"`
	LongPresses  int `json:"long_presses"`
	Probes       int `json:"probes"`
	Blinks       int `json:"blinks"`
	BlinksDone   int `json:"blinks_done"`
	Deferred     int `json:"deferred"`
	Spurious     int `json:"spurious"`
	LEDToggles   int `json:"led_toggles"`
}

// DropsJSON reports interrupts lost to a full dispatch queue.
type DropsJSON struct {
	Edges      int `json:"edges"`
	Interrupts int `json:"interrupts"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickRateHz   uint32 `json:"tick_rate_hz"`
	CounterBits  uint8  `json:"counter_bits"`
	DebounceMs   int64  `json:"debounce_ms"`
	LongPressMs  int64  `json:"long_press_ms"`
	BlinkCycleMs int64  `json:"blink_cycle_ms"`
	BlinkDutyMs  int64  `json:"blink_duty_ms"`
	ReportMs     int64  `json:"report_ms"`
	ButtonPin    int    `json:"button_pin"`
	ProbePins    [2]int `json:"probe_pins"`
	LEDPin       int    `json:"led_pin"`
	Broker       string `json:"broker"`
	HTTPPort     string `json:"http_port"`
}

func buildInner(snap Snapshot) StatusInner {
	ctrl := snap.Controller
	channels := make([]ChannelJSON, len(ctrl.Channels))
	for i, ch := range ctrl.Channels {
		channels[i] = ChannelJSON{Channel: i, Phase: ch.Phase.String(), Target: uint32(ch.Target)}
	}
	c := ctrl.Counts
	cfg := snap.Config

	return StatusInner{
		Session:       ctrl.Session.String(),
		LED:           ctrl.LED,
		Counter:       uint32(ctrl.Counter),
		Channels:      channels,
		BlinkCount:    ctrl.BlinkCount,
		PendingBlinks: ctrl.PendingBlinks,
		LastEvent:     buildEvent(snap.LastEvent),
		Samples: SamplesJSON{
			Temperature: buildSample(snap.Temperature),
			Analog:      buildSample(snap.Analog),
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: cfg.Broker},
		Counts: CountsJSON{
			Presses:      c.Presses,
			Bounces:      c.Bounces,
			ShortPresses: c.ShortPresses,
			LongPresses:  c.LongPresses,
			Probes:       c.Probes,
			Blinks:       c.Blinks,
			BlinksDone:   c.BlinksDone,
			Deferred:     c.Deferred,
			Spurious:     c.Spurious,
			LEDToggles:   c.LEDToggles,
		},
		Drops: DropsJSON{Edges: snap.Drops.Edges, Interrupts: snap.Drops.Interrupts},
		Config: ConfigJSON{
			TickRateHz:   cfg.TickRateHz,
			CounterBits:  cfg.CounterBits,
			DebounceMs:   cfg.DebounceMs,
			LongPressMs:  cfg.LongPressMs,
			BlinkCycleMs: cfg.BlinkCycleMs,
			BlinkDutyMs:  cfg.BlinkDutyMs,
			ReportMs:     cfg.ReportMs,
			ButtonPin:    cfg.ButtonPin,
			ProbePins:    cfg.ProbePins,
			LEDPin:       cfg.LEDPin,
			Broker:       cfg.Broker,
			HTTPPort:     cfg.HTTPPort,
		},
	}
}

func buildEvent(ev logic.Event) *EventJSON {
	if ev.Type == "" {
		return nil
	}
	return &EventJSON{
		Type:      string(ev.Type),
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
		Pin:       int(ev.Pin),
		HeldMs:    ev.Held.Milliseconds(),
		Blinks:    ev.Blinks,
	}
}

func buildSample(s sampler.Sample) *SampleJSON {
	if s.Time.IsZero() {
		return nil
	}
	out := &SampleJSON{
		Value:     s.Value,
		Unit:      s.Unit,
		Timestamp: s.Time.UTC().Format(time.RFC3339),
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return out
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// Build returns the status details for embedding in other messages.
func Build(snap Snapshot) StatusInner {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := Build(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := Build(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
