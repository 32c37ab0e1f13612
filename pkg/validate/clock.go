package validate

import "time"

// Clock abstracts timer creation so the debounce machinery is testable
// without real waits.
type Clock interface {
	// AfterFunc schedules fn to run after d and returns its timer handle.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancelable scheduled call.
type Timer interface {
	// Stop cancels the timer. Reports whether it was still pending.
	Stop() bool
}

// RealClock uses time.AfterFunc.
type RealClock struct{}

func (RealClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
