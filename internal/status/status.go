// Package status provides a thread-safe status tracker for the button-sensor daemon.
// It is read by the HTTP handlers and the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/sampler"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickRateHz   uint32
	CounterBits  uint8
	DebounceMs   int64
	LongPressMs  int64
	BlinkCycleMs int64
	BlinkDutyMs  int64
	ReportMs     int64
	ButtonPin    int
	ProbePins    [2]int
	LEDPin       int
	Broker       string
	HTTPPort     string
}

// Drops counts interrupts discarded because the dispatch queue was full.
type Drops struct {
	Edges      int
	Interrupts int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Controller    logic.Snapshot
	LastEvent     logic.Event // zero Type if nothing happened yet
	Temperature   sampler.Sample
	Analog        sampler.Sample
	Drops         Drops
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the controller state.
// Called from runLoop after every dispatch.
func (t *Tracker) Update(ctrl logic.Snapshot) {
	t.mu.Lock()
	t.snap.Controller = ctrl
	t.mu.Unlock()
}

// RecordEvent stores the most recent controller event.
func (t *Tracker) RecordEvent(ev logic.Event) {
	t.mu.Lock()
	t.snap.LastEvent = ev
	t.mu.Unlock()
}

// RecordSample stores the latest reading of its kind.
func (t *Tracker) RecordSample(s sampler.Sample) {
	t.mu.Lock()
	switch s.Kind {
	case sampler.KindTemperature:
		t.snap.Temperature = s
	case sampler.KindAnalog:
		t.snap.Analog = s
	}
	t.mu.Unlock()
}

// SetDrops sets the dispatch queue drop counters.
func (t *Tracker) SetDrops(d Drops) {
	t.mu.Lock()
	t.snap.Drops = d
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
