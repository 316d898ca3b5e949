//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealBoard drives actual hardware using the Linux GPIO character device.
type RealBoard struct {
	chip   *gpiocdev.Chip
	inputs map[Pin]*gpiocdev.Line
	led    *gpiocdev.Line
}

// NewRealBoard requests the input lines with edge detection and the LED line
// as an output driven low. Edge events are passed to h.
func NewRealBoard(chipName string, inputs []Input, ledPin Pin, h EdgeHandler) (*RealBoard, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := &RealBoard{
		chip:   chip,
		inputs: make(map[Pin]*gpiocdev.Line, len(inputs)),
	}

	for _, in := range inputs {
		opts := []gpiocdev.LineReqOption{
			gpiocdev.AsInput,
			gpiocdev.WithEventHandler(b.eventHandler(h)),
		}
		if in.PullUp {
			opts = append(opts, gpiocdev.WithPullUp)
		} else {
			opts = append(opts, gpiocdev.WithPullDown)
		}
		switch in.Edge {
		case EdgeRising:
			opts = append(opts, gpiocdev.WithRisingEdge)
		case EdgeFalling:
			opts = append(opts, gpiocdev.WithFallingEdge)
		default:
			opts = append(opts, gpiocdev.WithBothEdges)
		}

		line, err := chip.RequestLine(int(in.Pin), opts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request input pin %d: %w", in.Pin, err)
		}
		b.inputs[in.Pin] = line
	}

	led, err := chip.RequestLine(int(ledPin), gpiocdev.AsOutput(0))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request LED pin %d: %w", ledPin, err)
	}
	b.led = led

	return b, nil
}

// eventHandler converts kernel line events into EdgeEvents. The kernel
// timestamp is monotonic, so the wall clock is taken at delivery instead.
func (b *RealBoard) eventHandler(h EdgeHandler) func(gpiocdev.LineEvent) {
	return func(evt gpiocdev.LineEvent) {
		if h == nil {
			return
		}
		edge := EdgeRising
		if evt.Type == gpiocdev.LineEventFallingEdge {
			edge = EdgeFalling
		}
		h(EdgeEvent{Pin: Pin(evt.Offset), Edge: edge, Time: time.Now()})
	}
}

// Level returns the raw level of an input line.
func (b *RealBoard) Level(pin Pin) (bool, error) {
	line, ok := b.inputs[pin]
	if !ok {
		return false, fmt.Errorf("pin %d not requested", pin)
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v != 0, nil
}

// Set drives the LED line.
func (b *RealBoard) Set(level bool) error {
	v := 0
	if level {
		v = 1
	}
	if err := b.led.SetValue(v); err != nil {
		return fmt.Errorf("set LED: %w", err)
	}
	return nil
}

// Close releases GPIO resources.
// The LED is driven low and then returned to an input so the line is left in
// its boot default state.
func (b *RealBoard) Close() error {
	var errs []error

	if b.led != nil {
		if err := b.led.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear LED: %w", err))
		}
		if err := b.led.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure LED pin: %w", err))
		}
		if err := b.led.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close LED pin: %w", err))
		}
	}
	for pin, line := range b.inputs {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
