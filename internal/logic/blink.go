package logic

import (
	"fmt"
	"time"

	"github.com/sweeney/button-sensor/internal/timer"
)

func (c *Controller) requestBlink(n int, at time.Time) error {
	if n < 1 {
		return fmt.Errorf("%w: %d is below 1", ErrInvalidBlinkCount, n)
	}
	if n > c.maxBlinks {
		return fmt.Errorf("%w: %d exceeds %d for this counter", ErrInvalidBlinkCount, n, c.maxBlinks)
	}
	if c.session == SessionButton {
		if n > c.pendingBlinks {
			c.pendingBlinks = n
		}
		c.counts.Deferred++
		return nil
	}
	return c.startBlink(n, at)
}

// startBlink schedules n cycles from the current counter value. A blink
// already running is restarted from now; cycle counts do not add up.
func (c *Controller) startBlink(n int, at time.Time) error {
	c.timer.Enable()
	t0 := c.timer.Now()
	if err := c.arm(ChannelBlinkToggle, PhaseBlinkToggle, t0+c.duty); err != nil {
		return err
	}
	end := t0 + c.cycle*timer.Ticks(n-1) + c.duty
	if err := c.arm(ChannelBlinkEnd, PhaseBlinkEnd, end); err != nil {
		return err
	}
	if err := c.setLED(true); err != nil {
		c.disarm(ChannelBlinkToggle)
		c.disarm(ChannelBlinkEnd)
		c.idle()
		return err
	}
	c.session = SessionBlinking
	c.blinkCount = n
	c.counts.Blinks++
	c.emit(Event{Timestamp: at, Type: EventBlinkStart, Blinks: n})
	return nil
}

// blinkToggle flips the LED and re-arms channel 1 for the next phase
// boundary, relative to the target that just fired.
func (c *Controller) blinkToggle(fired timer.Ticks) error {
	on := !c.ledOn
	if err := c.setLED(on); err != nil {
		return err
	}
	next := fired + c.pause
	if on {
		next = fired + c.duty
	}
	return c.arm(ChannelBlinkToggle, PhaseBlinkToggle, next)
}

func (c *Controller) blinkEnd(at time.Time) error {
	c.disarm(ChannelBlinkToggle)
	c.disarm(ChannelBlinkEnd)
	c.idle()
	err := c.setLED(false)

	n := c.blinkCount
	c.blinkCount = 0
	c.counts.BlinksDone++
	c.emit(Event{Timestamp: at, Type: EventBlinkEnd, Blinks: n})
	return err
}
