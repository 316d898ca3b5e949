// Package timer provides a free-running tick counter with independently
// armable compare channels.
// The real implementation is a software counter driven by the monotonic clock.
// The fake implementation only advances when told to, for deterministic tests.
package timer

import (
	"errors"
	"fmt"
	"time"
)

// Ticks is a counter value. Arithmetic wraps at the counter's bit width.
type Ticks uint32

// Channel identifies a compare channel.
type Channel uint8

// NumChannels is the number of compare channels a Service provides.
const NumChannels = 3

// Defaults match a 32.768kHz low-frequency RTC with a 24-bit counter.
const (
	DefaultRateHz = 32768
	DefaultWidth  = 24
)

// ErrInvalidChannel is returned when arming a channel that does not exist.
var ErrInvalidChannel = errors.New("timer: invalid compare channel")

// Interrupt is raised once when the counter reaches an armed channel's target.
// Seq is the value Arm returned for that arming; an interrupt whose Seq no
// longer matches the channel's latest arming is stale.
type Interrupt struct {
	Channel Channel
	Target  Ticks
	Seq     uint32
}

// Handler receives compare interrupts.
type Handler func(Interrupt)

// Service is the counter and its compare channels.
type Service interface {
	// Now returns the current counter value.
	Now() Ticks
	// Arm programs ch to fire once when the counter reaches target and
	// returns the arming's sequence number, carried by its Interrupt.
	// Re-arming an armed channel replaces its target.
	Arm(ch Channel, target Ticks) (uint32, error)
	// Disarm cancels ch. Disarming a disarmed channel is a no-op.
	Disarm(ch Channel)
	// Clear resets the counter to zero.
	Clear()
	// Enable starts the counter. Enabling a running counter is a no-op.
	Enable()
	// Disable stops the counter, keeping its value.
	Disable()
	// Mask returns the largest counter value before wraparound.
	Mask() Ticks
}

// Config describes the counter hardware.
type Config struct {
	RateHz uint32 // tick frequency
	Width  uint8  // counter bit width, 1..32
}

// DefaultConfig returns the RTC-style defaults.
func DefaultConfig() Config {
	return Config{RateHz: DefaultRateHz, Width: DefaultWidth}
}

// Validate checks that the counter can be built.
func (c Config) Validate() error {
	if c.RateHz == 0 {
		return errors.New("timer: rate must be positive")
	}
	if c.Width == 0 || c.Width > 32 {
		return fmt.Errorf("timer: width %d out of range 1..32", c.Width)
	}
	return nil
}

// Mask returns the counter mask for the configured width.
func (c Config) Mask() Ticks {
	if c.Width >= 32 {
		return ^Ticks(0)
	}
	return Ticks(1)<<c.Width - 1
}

// MsToTicks converts milliseconds to ticks, truncating.
func MsToTicks(ms uint32, rateHz uint32) Ticks {
	return Ticks(uint64(ms) * uint64(rateHz) / 1000)
}

// TicksToDuration converts ticks to a duration, truncating.
func TicksToDuration(t Ticks, rateHz uint32) time.Duration {
	if rateHz == 0 {
		return 0
	}
	return time.Duration(uint64(t) * uint64(time.Second) / uint64(rateHz))
}

// distance returns how many ticks the counter must advance from `from` to
// reach `to`. A target equal to the current value is a full period away.
func distance(from, to, mask Ticks) uint64 {
	d := uint64((to - from) & mask)
	if d == 0 {
		return uint64(mask) + 1
	}
	return d
}
