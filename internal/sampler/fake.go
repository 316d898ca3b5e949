package sampler

import (
	"fmt"
	"sync"
	"time"
)

// Fake records requests and completes them only when told to.
type Fake struct {
	mu      sync.Mutex
	done    DoneFunc
	pending map[Kind]bool

	// Requests records every accepted request in order.
	Requests []Kind

	// RequestError, if set, will be returned by Request()
	RequestError error
}

// NewFake creates a Fake that reports to done.
func NewFake(done DoneFunc) *Fake {
	return &Fake{done: done, pending: make(map[Kind]bool)}
}

// SetDone replaces the completion callback.
func (f *Fake) SetDone(done DoneFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = done
}

// Request records kind. A second request of the same kind before Complete
// returns ErrBusy.
func (f *Fake) Request(kind Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RequestError != nil {
		return f.RequestError
	}
	if f.pending[kind] {
		return fmt.Errorf("%w: %s", ErrBusy, kind)
	}
	f.pending[kind] = true
	f.Requests = append(f.Requests, kind)
	return nil
}

// Pending reports whether a request of kind awaits completion.
func (f *Fake) Pending(kind Kind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[kind]
}

// Complete finishes the pending request of kind with value. It returns false
// if nothing was pending.
func (f *Fake) Complete(kind Kind, value float64) bool {
	f.mu.Lock()
	if !f.pending[kind] {
		f.mu.Unlock()
		return false
	}
	f.pending[kind] = false
	done := f.done
	f.mu.Unlock()

	if done != nil {
		done(Sample{Kind: kind, Value: value, Unit: kind.Unit(), Time: time.Now()})
	}
	return true
}
