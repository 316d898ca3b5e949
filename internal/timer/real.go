package timer

import (
	"sync"
	"time"
)

// Real is a software counter derived from the monotonic clock. Each armed
// channel is backed by a time.Timer; expiry delivers the interrupt to the
// handler from the timer's goroutine, so handlers must not block.
type Real struct {
	mu        sync.Mutex
	cfg       Config
	mask      Ticks
	base      Ticks     // counter value at startedAt
	startedAt time.Time // zero while disabled
	enabled   bool
	channels  [NumChannels]realChannel
	handler   Handler
	now       func() time.Time
}

type realChannel struct {
	armed  bool
	target Ticks
	seq    uint32 // bumped by every Arm
	gen    uint64 // bumped whenever a scheduled expiry is invalidated
	t      *time.Timer
}

// NewReal creates a stopped counter at zero that delivers interrupts to h.
func NewReal(cfg Config, h Handler) (*Real, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Real{
		cfg:     cfg,
		mask:    cfg.Mask(),
		handler: h,
		now:     time.Now,
	}, nil
}

// Now returns the current counter value.
func (r *Real) Now() Ticks {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nowLocked()
}

func (r *Real) nowLocked() Ticks {
	if !r.enabled {
		return r.base
	}
	elapsed := r.now().Sub(r.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	hz := uint64(r.cfg.RateHz)
	secs := uint64(elapsed / time.Second)
	frac := uint64(elapsed % time.Second)
	ticks := secs*hz + frac*hz/uint64(time.Second)
	return (r.base + Ticks(ticks)) & r.mask
}

// Mask returns the counter mask.
func (r *Real) Mask() Ticks { return r.mask }

// Arm programs ch to fire when the counter reaches target.
func (r *Real) Arm(ch Channel, target Ticks) (uint32, error) {
	if int(ch) >= NumChannels {
		return 0, ErrInvalidChannel
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &r.channels[ch]
	r.stopLocked(c)
	c.armed = true
	c.target = target & r.mask
	c.seq++
	if r.enabled {
		r.scheduleLocked(ch)
	}
	return c.seq, nil
}

// Disarm cancels ch.
func (r *Real) Disarm(ch Channel) {
	if int(ch) >= NumChannels {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &r.channels[ch]
	r.stopLocked(c)
	c.armed = false
}

// Clear resets the counter to zero. Armed channels are rescheduled against
// the new counter value.
func (r *Real) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.base = 0
	if r.enabled {
		r.startedAt = r.now()
		r.rescheduleLocked()
	}
}

// Enable starts the counter.
func (r *Real) Enable() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enabled {
		return
	}
	r.enabled = true
	r.startedAt = r.now()
	r.rescheduleLocked()
}

// Disable stops the counter, keeping its value. Armed channels stay armed
// but cannot fire until the counter runs again.
func (r *Real) Disable() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return
	}
	r.base = r.nowLocked()
	r.enabled = false
	for i := range r.channels {
		c := &r.channels[i]
		if c.t != nil {
			c.t.Stop()
			c.t = nil
		}
		c.gen++
	}
}

// Close stops every pending channel timer.
func (r *Real) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.channels {
		r.stopLocked(&r.channels[i])
		r.channels[i].armed = false
	}
	r.enabled = false
	return nil
}

func (r *Real) stopLocked(c *realChannel) {
	if c.t != nil {
		c.t.Stop()
		c.t = nil
	}
	// Invalidate any expiry already running.
	c.gen++
}

func (r *Real) rescheduleLocked() {
	for i := range r.channels {
		if !r.channels[i].armed {
			continue
		}
		r.stopLocked(&r.channels[i])
		r.scheduleLocked(Channel(i))
	}
}

func (r *Real) scheduleLocked(ch Channel) {
	c := &r.channels[ch]
	d := r.ticksToWait(distance(r.nowLocked(), c.target, r.mask))
	gen := c.gen
	c.t = time.AfterFunc(d, func() { r.expire(ch, gen) })
}

// ticksToWait rounds up so the interrupt never lands before the counter
// reaches its target.
func (r *Real) ticksToWait(t uint64) time.Duration {
	hz := uint64(r.cfg.RateHz)
	return time.Duration((t*uint64(time.Second) + hz - 1) / hz)
}

// expire fires ch and every other channel armed for the same target, in
// channel order, so that shared targets are delivered lowest channel first
// whichever timer goroutine runs first.
func (r *Real) expire(ch Channel, gen uint64) {
	r.mu.Lock()
	c := &r.channels[ch]
	if !c.armed || c.gen != gen || !r.enabled {
		r.mu.Unlock()
		return
	}
	target := c.target
	var due [NumChannels]Interrupt
	n := 0
	for i := range r.channels {
		o := &r.channels[i]
		if !o.armed || o.target != target {
			continue
		}
		r.stopLocked(o)
		o.armed = false
		due[n] = Interrupt{Channel: Channel(i), Target: target, Seq: o.seq}
		n++
	}
	h := r.handler
	r.mu.Unlock()

	if h == nil {
		return
	}
	for _, irq := range due[:n] {
		h(irq)
	}
}
