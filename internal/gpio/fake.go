package gpio

import (
	"errors"
	"time"
)

// FakeBoard is a test double with scripted input levels and a recorded LED.
type FakeBoard struct {
	levels  map[Pin]bool
	inputs  map[Pin]Input
	handler EdgeHandler

	// LED is the current output level.
	LED bool

	// Writes records every Set call in order.
	Writes []bool

	// Toggles counts Set calls that changed the level.
	Toggles int

	// Closed tracks if Close was called
	Closed bool

	// LevelError, if set, will be returned by Level()
	LevelError error

	// SetError, if set, will be returned by Set()
	SetError error
}

// NewFakeBoard creates a FakeBoard. Pull-up inputs start high, others low.
func NewFakeBoard(inputs []Input, h EdgeHandler) *FakeBoard {
	f := &FakeBoard{
		levels:  make(map[Pin]bool, len(inputs)),
		inputs:  make(map[Pin]Input, len(inputs)),
		handler: h,
	}
	for _, in := range inputs {
		f.inputs[in.Pin] = in
		f.levels[in.Pin] = in.PullUp
	}
	return f
}

// SetHandler replaces the edge handler.
func (f *FakeBoard) SetHandler(h EdgeHandler) { f.handler = h }

// Drive sets the level of an input. If the level changes and the input's
// edge filter matches, the handler is called synchronously.
func (f *FakeBoard) Drive(pin Pin, level bool, at time.Time) {
	prev := f.levels[pin]
	f.levels[pin] = level
	if prev == level {
		return
	}
	edge := EdgeFalling
	if level {
		edge = EdgeRising
	}
	in, ok := f.inputs[pin]
	if !ok || !in.Edge.Matches(edge) {
		return
	}
	if f.handler != nil {
		f.handler(EdgeEvent{Pin: pin, Edge: edge, Time: at})
	}
}

// SetLevel changes an input level without delivering an edge, as if the
// edge were still pending.
func (f *FakeBoard) SetLevel(pin Pin, level bool) {
	f.levels[pin] = level
}

// Level returns the scripted level of an input.
func (f *FakeBoard) Level(pin Pin) (bool, error) {
	if f.LevelError != nil {
		return false, f.LevelError
	}
	level, ok := f.levels[pin]
	if !ok {
		return false, errors.New("pin not configured")
	}
	return level, nil
}

// Set records the LED level.
func (f *FakeBoard) Set(level bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Writes = append(f.Writes, level)
	if level != f.LED {
		f.Toggles++
	}
	f.LED = level
	return nil
}

// Close marks the board as closed.
func (f *FakeBoard) Close() error {
	f.Closed = true
	return nil
}

// Reset clears the recorded LED history.
func (f *FakeBoard) Reset() {
	f.Writes = nil
	f.Toggles = 0
	f.Closed = false
}
