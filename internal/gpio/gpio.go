// Package gpio provides edge-triggered inputs and the LED output with
// hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"
	"strings"
	"time"
)

// Pin is a line offset on the GPIO chip.
type Pin int

// Edge is a level transition direction.
type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return "none"
	}
}

// ParseEdge parses "rising", "falling" or "both".
func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(s) {
	case "rising":
		return EdgeRising, nil
	case "falling":
		return EdgeFalling, nil
	case "both":
		return EdgeBoth, nil
	}
	return EdgeNone, fmt.Errorf("unknown edge %q", s)
}

// Matches reports whether a transition e satisfies a configured edge filter.
func (e Edge) Matches(transition Edge) bool {
	return e == EdgeBoth || e == transition
}

// EdgeEvent is one raw, undebounced transition.
type EdgeEvent struct {
	Pin  Pin
	Edge Edge
	Time time.Time
}

// EdgeHandler receives edge events. It is called from the platform's event
// goroutine and must not block.
type EdgeHandler func(EdgeEvent)

// Input describes an edge-triggered input line.
type Input struct {
	Pin    Pin
	Edge   Edge // which transitions to deliver
	PullUp bool
}

// LevelReader reads the raw level of an input line.
type LevelReader interface {
	Level(pin Pin) (bool, error)
}

// Output is an idempotent level output.
type Output interface {
	Set(level bool) error
}

// Board is the full set of lines the daemon uses.
type Board interface {
	LevelReader
	Output

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	DefaultPinButton = 17
	DefaultPinProbeA = 22
	DefaultPinProbeB = 27
	DefaultPinLED    = 18
)
