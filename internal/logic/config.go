package logic

import (
	"fmt"
	"math"

	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/timer"
)

// Config holds controller timing and wiring. Delays are in milliseconds and
// converted to ticks with truncation.
type Config struct {
	TickRateHz uint32

	DebounceMs   uint32
	LongPressMs  uint32
	BlinkCycleMs uint32
	BlinkDutyMs  uint32

	ShortPressBlinks int
	LongPressBlinks  int

	ButtonPin       gpio.Pin
	ButtonActiveLow bool
	Probes          [2]Probe
}

// DefaultConfig returns the stock timing and pin assignment.
func DefaultConfig() Config {
	return Config{
		TickRateHz:       timer.DefaultRateHz,
		DebounceMs:       100,
		LongPressMs:      5000,
		BlinkCycleMs:     400,
		BlinkDutyMs:      100,
		ShortPressBlinks: 2,
		LongPressBlinks:  5,
		ButtonPin:        gpio.DefaultPinButton,
		ButtonActiveLow:  true,
		Probes: [2]Probe{
			{Pin: gpio.DefaultPinProbeA, Edge: gpio.EdgeFalling, Blinks: 1},
			{Pin: gpio.DefaultPinProbeB, Edge: gpio.EdgeFalling, Blinks: 3},
		},
	}
}

// PressEdge is the transition that starts a press.
func (c Config) PressEdge() gpio.Edge {
	if c.ButtonActiveLow {
		return gpio.EdgeFalling
	}
	return gpio.EdgeRising
}

// Validate checks timing relationships and pin assignment.
func (c Config) Validate() error {
	if c.TickRateHz == 0 {
		return fmt.Errorf("%w: tick rate must be positive", ErrInvalidConfig)
	}
	if c.DebounceMs >= c.LongPressMs {
		return fmt.Errorf("%w: debounce %dms must be shorter than long press %dms", ErrInvalidConfig, c.DebounceMs, c.LongPressMs)
	}
	if c.BlinkDutyMs >= c.BlinkCycleMs {
		return fmt.Errorf("%w: blink duty %dms must be shorter than cycle %dms", ErrInvalidConfig, c.BlinkDutyMs, c.BlinkCycleMs)
	}
	if timer.MsToTicks(c.BlinkDutyMs, c.TickRateHz) == 0 {
		return fmt.Errorf("%w: blink duty %dms is below one tick", ErrInvalidConfig, c.BlinkDutyMs)
	}
	if timer.MsToTicks(c.LongPressMs, c.TickRateHz) == 0 {
		return fmt.Errorf("%w: long press %dms is below one tick", ErrInvalidConfig, c.LongPressMs)
	}
	if c.ShortPressBlinks < 1 || c.LongPressBlinks < 1 {
		return fmt.Errorf("%w: feedback blink counts must be at least 1", ErrInvalidConfig)
	}
	for i, p := range c.Probes {
		if p.Pin == c.ButtonPin {
			return fmt.Errorf("%w: probe %d shares button pin %d", ErrInvalidConfig, i, p.Pin)
		}
		if p.Edge != gpio.EdgeRising && p.Edge != gpio.EdgeFalling {
			return fmt.Errorf("%w: probe %d needs a single edge type, got %v", ErrInvalidConfig, i, p.Edge)
		}
		if p.Blinks < 1 {
			return fmt.Errorf("%w: probe %d blink count must be at least 1", ErrInvalidConfig, i)
		}
	}
	if c.Probes[0].Pin == c.Probes[1].Pin {
		return fmt.Errorf("%w: probes share pin %d", ErrInvalidConfig, c.Probes[0].Pin)
	}
	return nil
}

// ValidateCounter checks that the long-press delay and every configured blink
// span fit within one period of a counter with the given mask.
func (c Config) ValidateCounter(mask timer.Ticks) error {
	if msToTicks64(c.LongPressMs, c.TickRateHz) > uint64(mask) {
		return fmt.Errorf("%w: long press %dms exceeds the counter period", ErrInvalidConfig, c.LongPressMs)
	}
	limit := c.MaxBlinks(mask)
	if limit < 1 {
		return fmt.Errorf("%w: blink duty %dms exceeds the counter period", ErrInvalidConfig, c.BlinkDutyMs)
	}
	counts := []int{c.ShortPressBlinks, c.LongPressBlinks, c.Probes[0].Blinks, c.Probes[1].Blinks}
	for _, n := range counts {
		if n > limit {
			return fmt.Errorf("%w: %d blinks exceed the counter period (max %d)", ErrInvalidConfig, n, limit)
		}
	}
	return nil
}

// MaxBlinks returns the largest blink count whose end target,
// cycle*(n-1)+duty ticks from the start, fits in a counter with the given mask.
func (c Config) MaxBlinks(mask timer.Ticks) int {
	duty := msToTicks64(c.BlinkDutyMs, c.TickRateHz)
	cycle := msToTicks64(c.BlinkCycleMs, c.TickRateHz)
	if cycle == 0 || duty > uint64(mask) {
		return 0
	}
	n := (uint64(mask)-duty)/cycle + 1
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	return int(n)
}

func msToTicks64(ms, rateHz uint32) uint64 {
	return uint64(ms) * uint64(rateHz) / 1000
}

func (c Config) ticks(ms uint32) timer.Ticks {
	return timer.MsToTicks(ms, c.TickRateHz)
}
