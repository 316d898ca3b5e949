package timer

// Fake is a deterministic Service. The counter only moves on Advance, and
// compare interrupts are delivered synchronously from inside Advance.
// Not safe for concurrent use.
type Fake struct {
	cfg      Config
	mask     Ticks
	counter  Ticks
	enabled  bool
	channels [NumChannels]fakeChannel
	handler  Handler

	// Fired records every interrupt delivered, in order.
	Fired []Interrupt

	// Clears counts calls to Clear.
	Clears int
}

type fakeChannel struct {
	armed  bool
	target Ticks
	seq    uint32
}

// NewFake creates a stopped Fake counter at zero.
func NewFake(cfg Config) *Fake {
	return &Fake{cfg: cfg, mask: cfg.Mask()}
}

// SetHandler installs the interrupt handler.
func (f *Fake) SetHandler(h Handler) { f.handler = h }

// Now returns the counter value.
func (f *Fake) Now() Ticks { return f.counter }

// Mask returns the counter mask.
func (f *Fake) Mask() Ticks { return f.mask }

// Arm programs a channel.
func (f *Fake) Arm(ch Channel, target Ticks) (uint32, error) {
	if int(ch) >= NumChannels {
		return 0, ErrInvalidChannel
	}
	c := &f.channels[ch]
	c.armed = true
	c.target = target & f.mask
	c.seq++
	return c.seq, nil
}

// Disarm cancels a channel.
func (f *Fake) Disarm(ch Channel) {
	if int(ch) >= NumChannels {
		return
	}
	f.channels[ch].armed = false
}

// Clear resets the counter to zero.
func (f *Fake) Clear() {
	f.counter = 0
	f.Clears++
}

// Enable starts the counter.
func (f *Fake) Enable() { f.enabled = true }

// Disable stops the counter.
func (f *Fake) Disable() { f.enabled = false }

// Enabled reports whether the counter is running.
func (f *Fake) Enabled() bool { return f.enabled }

// Armed returns the target of ch and whether it is armed.
func (f *Fake) Armed(ch Channel) (Ticks, bool) {
	if int(ch) >= NumChannels {
		return 0, false
	}
	c := f.channels[ch]
	return c.target, c.armed
}

// Set forces the counter value. Useful for wraparound tests.
func (f *Fake) Set(t Ticks) { f.counter = t & f.mask }

// AdvanceMs advances the counter by ms milliseconds worth of ticks.
func (f *Fake) AdvanceMs(ms uint32) {
	f.Advance(uint64(MsToTicks(ms, f.cfg.RateHz)))
}

// Advance moves the counter forward by n ticks, delivering each compare
// interrupt as the counter reaches its target. Channels sharing a target fire
// in channel order. A disabled counter does not move; if a handler disables
// the counter the remaining ticks are discarded.
func (f *Fake) Advance(n uint64) {
	for n > 0 && f.enabled {
		dist, ok := f.nextDistance()
		if !ok || dist > n {
			f.counter = (f.counter + Ticks(n)) & f.mask
			return
		}
		f.counter = (f.counter + Ticks(dist)) & f.mask
		n -= dist
		f.fireDue()
	}
}

func (f *Fake) nextDistance() (uint64, bool) {
	var best uint64
	found := false
	for _, c := range f.channels {
		if !c.armed {
			continue
		}
		d := distance(f.counter, c.target, f.mask)
		if !found || d < best {
			best = d
			found = true
		}
	}
	return best, found
}

// fireDue delivers interrupts for every channel whose target equals the
// counter. The due set is captured first so a handler re-arming a channel at
// the current value does not fire it again.
func (f *Fake) fireDue() {
	var due [NumChannels]bool
	var seqs [NumChannels]uint32
	for i, c := range f.channels {
		due[i] = c.armed && c.target == f.counter
		seqs[i] = c.seq
	}
	for i := range f.channels {
		if !due[i] {
			continue
		}
		c := f.channels[i]
		if !c.armed || c.seq != seqs[i] {
			// Disarmed or re-armed by an earlier handler.
			continue
		}
		f.channels[i].armed = false
		irq := Interrupt{Channel: Channel(i), Target: c.target, Seq: c.seq}
		f.Fired = append(f.Fired, irq)
		if f.handler != nil {
			f.handler(irq)
		}
	}
}
