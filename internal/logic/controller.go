package logic

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/timer"
)

// Timer is the shared counter and its compare channels.
type Timer interface {
	Now() timer.Ticks
	Arm(ch timer.Channel, target timer.Ticks) (uint32, error)
	Disarm(ch timer.Channel)
	Clear()
	Enable()
	Disable()
	Mask() timer.Ticks
}

// Controller owns the counter, the compare channels and the LED. Each entry
// point is one critical section; platform adapters call HandleEdge and
// HandleCompare, the application calls RequestBlink.
type Controller struct {
	mu sync.Mutex

	cfg    Config
	timer  Timer
	led    gpio.Output
	button gpio.LevelReader
	hooks  Hooks
	now    func() time.Time

	debounce  timer.Ticks
	longPress timer.Ticks
	duty      timer.Ticks
	pause     timer.Ticks
	cycle     timer.Ticks
	maxBlinks int

	session       Session
	channels      [timer.NumChannels]ChannelState
	ledOn         bool
	blinkCount    int
	pendingBlinks int
	counts        EventCounts
	out           outbox
}

// outbox holds events produced during one transition, in order. They are
// delivered to the hooks after the lock is released.
type outbox struct {
	events []Event
}

func (o *outbox) push(ev Event) { o.events = append(o.events, ev) }

// New creates a Controller and forces the collaborators into the idle state:
// channels disarmed, counter stopped at zero, LED off.
func New(cfg Config, tm Timer, led gpio.Output, button gpio.LevelReader, hooks Hooks) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateCounter(tm.Mask()); err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:       cfg,
		timer:     tm,
		led:       led,
		button:    button,
		hooks:     hooks,
		now:       time.Now,
		debounce:  cfg.ticks(cfg.DebounceMs),
		longPress: cfg.ticks(cfg.LongPressMs),
		duty:      cfg.ticks(cfg.BlinkDutyMs),
		cycle:     cfg.ticks(cfg.BlinkCycleMs),
		maxBlinks: cfg.MaxBlinks(tm.Mask()),
	}
	c.pause = c.cycle - c.duty

	for ch := timer.Channel(0); ch < timer.NumChannels; ch++ {
		tm.Disarm(ch)
	}
	tm.Clear()
	tm.Disable()
	if err := led.Set(false); err != nil {
		return nil, fmt.Errorf("init LED: %w", err)
	}
	return c, nil
}

// HandleEdge dispatches a raw edge from the button or a probe.
func (c *Controller) HandleEdge(ev gpio.EdgeEvent) error {
	c.mu.Lock()
	err := c.dispatchEdge(ev, c.stamp(ev.Time))
	out := c.takeOutbox()
	c.mu.Unlock()

	c.deliver(out)
	return err
}

// HandleCompare dispatches a compare interrupt. Interrupts for channels that
// were disarmed or re-armed since they fired return ErrSpuriousInterrupt and
// change nothing.
func (c *Controller) HandleCompare(irq timer.Interrupt) error {
	c.mu.Lock()
	err := c.dispatchCompare(irq, c.now())
	out := c.takeOutbox()
	c.mu.Unlock()

	c.deliver(out)
	return err
}

// RequestBlink starts an n-cycle blink. While a press is being tracked the
// request is deferred until the press resolves. Counts below one, or too
// large for the blink to end within one counter period, return
// ErrInvalidBlinkCount.
func (c *Controller) RequestBlink(n int) error {
	c.mu.Lock()
	err := c.requestBlink(n, c.now())
	out := c.takeOutbox()
	c.mu.Unlock()

	c.deliver(out)
	return err
}

// Snapshot returns a copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Session:       c.session,
		LED:           c.ledOn,
		Counter:       c.timer.Now(),
		Channels:      c.channels,
		BlinkCount:    c.blinkCount,
		PendingBlinks: c.pendingBlinks,
		Counts:        c.counts,
	}
}

func (c *Controller) dispatchEdge(ev gpio.EdgeEvent, at time.Time) error {
	if ev.Pin == c.cfg.ButtonPin {
		if ev.Edge == c.cfg.PressEdge() {
			return c.press()
		}
		return c.release(at)
	}
	for _, p := range c.cfg.Probes {
		if p.Pin != ev.Pin {
			continue
		}
		if !p.Edge.Matches(ev.Edge) {
			return nil
		}
		return c.probe(p, at)
	}
	return nil
}

func (c *Controller) dispatchCompare(irq timer.Interrupt, at time.Time) error {
	if int(irq.Channel) >= timer.NumChannels {
		c.counts.Spurious++
		return fmt.Errorf("%w: no channel %d", ErrSpuriousInterrupt, irq.Channel)
	}
	st := c.channels[irq.Channel]
	if !st.Armed() || st.Target != irq.Target || st.Seq != irq.Seq {
		c.counts.Spurious++
		return fmt.Errorf("%w: channel %d target %d", ErrSpuriousInterrupt, irq.Channel, irq.Target)
	}
	// Compare channels fire once.
	c.channels[irq.Channel] = ChannelState{}

	switch st.Phase {
	case PhaseLongPress:
		return c.longPressElapsed(at)
	case PhaseBlinkToggle:
		return c.blinkToggle(st.Target)
	case PhaseBlinkEnd:
		return c.blinkEnd(at)
	}
	return nil
}

func (c *Controller) probe(p Probe, at time.Time) error {
	c.counts.Probes++
	c.emit(Event{Timestamp: at, Type: EventProbe, Pin: p.Pin, Blinks: p.Blinks})
	return c.requestBlink(p.Blinks, at)
}

// idle hands the counter back: cleared and stopped.
func (c *Controller) idle() {
	c.timer.Clear()
	c.timer.Disable()
	c.session = SessionIdle
}

func (c *Controller) setLED(on bool) error {
	if err := c.led.Set(on); err != nil {
		return fmt.Errorf("set LED: %w", err)
	}
	if on != c.ledOn {
		c.counts.LEDToggles++
	}
	c.ledOn = on
	return nil
}

func (c *Controller) emit(ev Event) { c.out.push(ev) }

func (c *Controller) takeOutbox() outbox {
	out := c.out
	c.out = outbox{}
	return out
}

func (c *Controller) deliver(out outbox) {
	for _, ev := range out.events {
		switch ev.Type {
		case EventShortPress:
			if c.hooks.ShortPress != nil {
				c.hooks.ShortPress()
			}
		case EventLongPress:
			if c.hooks.LongPress != nil {
				c.hooks.LongPress()
			}
		}
		if c.hooks.Event != nil {
			c.hooks.Event(ev)
		}
	}
}

func (c *Controller) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return c.now()
	}
	return t
}

func (c *Controller) duration(t timer.Ticks) time.Duration {
	return timer.TicksToDuration(t, c.cfg.TickRateHz)
}
