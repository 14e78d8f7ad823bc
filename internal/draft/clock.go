// ABOUTME: Clock abstraction for scheduling cancellable deferred flushes
// ABOUTME: The real clock wraps time.AfterFunc; tests substitute a manual clock

package draft

import "time"

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or was stopped.
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
func (realClock) Now() time.Time                            { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}
