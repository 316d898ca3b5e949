package logic

import "errors"

var (
	// ErrHardwareBusy means a compare channel was armed while it was still
	// armed for a different phase. It is a controller logic fault.
	ErrHardwareBusy = errors.New("compare channel busy")

	// ErrSpuriousInterrupt means a compare interrupt arrived for a channel
	// that was disarmed or re-targeted after it fired. Callers ignore it.
	ErrSpuriousInterrupt = errors.New("spurious compare interrupt")

	ErrInvalidBlinkCount = errors.New("invalid blink count")
	ErrInvalidConfig     = errors.New("invalid controller config")
)
