// Package sampler triggers one-shot analog and temperature readings that
// complete asynchronously.
package sampler

import (
	"errors"
	"time"
)

// Kind selects what to sample.
type Kind int

const (
	// KindTemperature reads a thermal sensor in degrees Celsius.
	KindTemperature Kind = iota
	// KindAnalog reads an ADC channel in millivolts.
	KindAnalog
)

// String returns the lowercase kind name used in payloads.
func (k Kind) String() string {
	switch k {
	case KindTemperature:
		return "temperature"
	case KindAnalog:
		return "analog"
	default:
		return "unknown"
	}
}

// Unit returns the unit Value is reported in.
func (k Kind) Unit() string {
	switch k {
	case KindTemperature:
		return "C"
	case KindAnalog:
		return "mV"
	default:
		return ""
	}
}

// Sample is the result of one request. Err is set if the reading failed.
type Sample struct {
	Kind  Kind
	Value float64
	Unit  string
	Raw   int64
	Time  time.Time
	Err   error
}

// DoneFunc receives completed samples. It may be called from any goroutine.
type DoneFunc func(Sample)

// Sampler starts a reading without waiting for it.
type Sampler interface {
	Request(kind Kind) error
}

var (
	// ErrBusy is returned when a request of the same kind is in flight.
	ErrBusy = errors.New("sampler busy")
	// ErrUnsupported is returned for a kind with no configured source.
	ErrUnsupported = errors.New("sample kind unsupported")
)
