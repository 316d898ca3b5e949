package logic

import (
	"fmt"
	"time"
)

// press starts tracking a press. Chatter during a tracked press, and presses
// while a blink owns the counter, are ignored.
func (c *Controller) press() error {
	if c.session != SessionIdle {
		return nil
	}
	c.timer.Enable()
	if err := c.arm(ChannelLongPress, PhaseLongPress, c.timer.Now()+c.longPress); err != nil {
		return err
	}
	c.session = SessionButton
	c.counts.Presses++
	return nil
}

// release classifies a tracked press by how long the counter has run.
func (c *Controller) release(at time.Time) error {
	if c.session != SessionButton {
		return nil
	}
	held := c.timer.Now()
	c.disarm(ChannelLongPress)

	switch {
	case held < c.debounce:
		c.counts.Bounces++
		c.emit(Event{Timestamp: at, Type: EventBounce, Pin: c.cfg.ButtonPin, Held: c.duration(held)})
		return c.endPress(0, at)
	case held < c.longPress:
		c.counts.ShortPresses++
		c.emit(Event{Timestamp: at, Type: EventShortPress, Pin: c.cfg.ButtonPin, Held: c.duration(held)})
		return c.endPress(c.cfg.ShortPressBlinks, at)
	default:
		// The long-press interrupt either found the pin released or is
		// still pending; when it arrives it is spurious.
		return c.endPress(0, at)
	}
}

// longPressElapsed runs when channel 0 fires. If the pin already reads
// released, the pending release edge resolves the press.
func (c *Controller) longPressElapsed(at time.Time) error {
	if c.session != SessionButton {
		return nil
	}
	pressed, err := c.buttonPressed()
	if err != nil {
		return err
	}
	if !pressed {
		return nil
	}
	c.counts.LongPresses++
	c.emit(Event{Timestamp: at, Type: EventLongPress, Pin: c.cfg.ButtonPin, Held: c.duration(c.timer.Now())})
	return c.endPress(c.cfg.LongPressBlinks, at)
}

// endPress hands the counter back and starts the feedback blink, or the
// largest blink deferred while the press was tracked.
func (c *Controller) endPress(feedback int, at time.Time) error {
	c.idle()
	n := feedback
	if c.pendingBlinks > n {
		n = c.pendingBlinks
	}
	c.pendingBlinks = 0
	if n == 0 {
		return nil
	}
	return c.startBlink(n, at)
}

func (c *Controller) buttonPressed() (bool, error) {
	level, err := c.button.Level(c.cfg.ButtonPin)
	if err != nil {
		return false, fmt.Errorf("read button: %w", err)
	}
	if c.cfg.ButtonActiveLow {
		return !level, nil
	}
	return level, nil
}
