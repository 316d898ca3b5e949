// Package logic contains the button/blink controller: the state machine that
// turns raw edges and compare interrupts into press semantics and LED blink
// sequences on one shared counter.
// This package has NO platform dependencies; the counter, the LED and the
// button level are collaborators passed in as interfaces, and wall-clock time
// is injectable.
package logic

import (
	"fmt"
	"time"

	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/timer"
)

// Compare channel assignments.
const (
	ChannelLongPress   timer.Channel = 0
	ChannelBlinkToggle timer.Channel = 1
	ChannelBlinkEnd    timer.Channel = 2
)

// Session says which activity owns the counter.
type Session uint8

const (
	SessionIdle Session = iota
	SessionButton
	SessionBlinking
)

func (s Session) String() string {
	switch s {
	case SessionIdle:
		return "IDLE"
	case SessionButton:
		return "BUTTON"
	case SessionBlinking:
		return "BLINKING"
	}
	return fmt.Sprintf("SESSION(%d)", uint8(s))
}

// Phase is what an armed compare channel is waiting for.
type Phase uint8

const (
	PhaseNone Phase = iota
	PhaseLongPress
	PhaseBlinkToggle
	PhaseBlinkEnd
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "DISARMED"
	case PhaseLongPress:
		return "LONG_PRESS"
	case PhaseBlinkToggle:
		return "BLINK_TOGGLE"
	case PhaseBlinkEnd:
		return "BLINK_END"
	}
	return fmt.Sprintf("PHASE(%d)", uint8(p))
}

// ChannelState is the software shadow of one compare channel.
type ChannelState struct {
	Phase  Phase // PhaseNone when disarmed
	Target timer.Ticks
	Seq    uint32 // arming sequence from the timer
}

// Armed reports whether the channel is armed.
func (c ChannelState) Armed() bool { return c.Phase != PhaseNone }

// EventType is a semantic controller event.
type EventType string

const (
	EventBounce     EventType = "BOUNCE"
	EventShortPress EventType = "SHORT_PRESS"
	EventLongPress  EventType = "LONG_PRESS"
	EventProbe      EventType = "PROBE"
	EventBlinkStart EventType = "BLINK_START"
	EventBlinkEnd   EventType = "BLINK_END"
)

// Event is emitted to Hooks.Event after each transition.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Pin       gpio.Pin      // button or probe pin; unset for blink events
	Held      time.Duration // press duration for button events
	Blinks    int           // cycle count for PROBE and BLINK_START
}

// Hooks are the application's extension points. They run after the
// controller's lock is released, on the goroutine that dispatched the
// transition, so they may call back into the controller.
type Hooks struct {
	ShortPress func()
	LongPress  func()
	Event      func(Event)
}

// EventCounts tracks controller activity since startup.
type EventCounts struct {
	Presses      int // press edges that started a button session
	Bounces      int
	ShortPresses int
	LongPresses  int
	Probes       int
	Blinks       int // blink sequences started
	BlinksDone   int // blink sequences completed
	Deferred     int // blink requests deferred behind a button session
	Spurious     int // compare interrupts ignored
	LEDToggles   int
}

// Snapshot is a point-in-time copy of controller state.
type Snapshot struct {
	Session       Session
	LED           bool
	Counter       timer.Ticks
	Channels      [timer.NumChannels]ChannelState
	BlinkCount    int
	PendingBlinks int
	Counts        EventCounts
}

// Probe is an edge-triggered input that requests a blink.
type Probe struct {
	Pin    gpio.Pin
	Edge   gpio.Edge
	Blinks int
}
