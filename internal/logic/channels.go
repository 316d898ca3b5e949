package logic

import (
	"fmt"

	"github.com/sweeney/button-sensor/internal/timer"
)

// arm programs ch for phase. Re-arming a channel for the phase it already
// serves replaces its target; a channel armed for another phase must be
// disarmed first.
func (c *Controller) arm(ch timer.Channel, phase Phase, target timer.Ticks) error {
	target &= c.timer.Mask()
	cur := c.channels[ch]
	if cur.Armed() && cur.Phase != phase {
		return fmt.Errorf("%w: channel %d armed for %v, wanted %v", ErrHardwareBusy, ch, cur.Phase, phase)
	}
	seq, err := c.timer.Arm(ch, target)
	if err != nil {
		return fmt.Errorf("arm channel %d: %w", ch, err)
	}
	c.channels[ch] = ChannelState{Phase: phase, Target: target, Seq: seq}
	return nil
}

// disarm cancels ch. Disarming a disarmed channel is a no-op.
func (c *Controller) disarm(ch timer.Channel) {
	if !c.channels[ch].Armed() {
		return
	}
	c.timer.Disarm(ch)
	c.channels[ch] = ChannelState{}
}
