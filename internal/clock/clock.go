// Package clock provides an injectable time source and the single-slot
// timer the bridge uses for debounce, reconnect and badge reversion.
//
// Production code uses Real(). Tests use NewFake() and drive time with
// Advance, which fires due AfterFunc callbacks synchronously.
package clock

import "time"

// Clock abstracts the time operations the bridge needs.
type Clock interface {
	Now() time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer can cancel
	// the pending call.
	AfterFunc(d time.Duration, f func()) Timer

	// NewTicker delivers ticks on the returned channel every d until stop
	// is called.
	NewTicker(d time.Duration) (ticks <-chan time.Time, stop func())
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call. Returns false if it already fired or was
	// already stopped.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realClock) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}
