package mqtt

import (
	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/sampler"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	// Events contains all controller events that were published.
	Events []logic.Event

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// Samples contains all sampler readings that were published.
	Samples []sampler.Sample

	// SamplePayloads contains the JSON payloads for readings.
	SamplePayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSampleError, if set, will be returned by PublishSample.
	PublishSampleError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the controller event.
func (f *FakePublisher) Publish(event logic.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSample records the reading.
func (f *FakePublisher) PublishSample(sample sampler.Sample) error {
	if f.PublishSampleError != nil {
		return f.PublishSampleError
	}

	payload, err := FormatSamplePayload(sample)
	if err != nil {
		return err
	}
	f.Samples = append(f.Samples, sample)
	f.SamplePayloads = append(f.SamplePayloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// EventTypes returns the types of the recorded events in order.
func (f *FakePublisher) EventTypes() []logic.EventType {
	types := make([]logic.EventType, len(f.Events))
	for i, ev := range f.Events {
		types[i] = ev.Type
	}
	return types
}

// Reset clears recorded messages and injected errors.
func (f *FakePublisher) Reset() {
	f.Events = nil
	f.Payloads = nil
	f.Samples = nil
	f.SamplePayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSampleError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
