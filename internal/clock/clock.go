// Package clock abstracts wall time so the simulator can run either in real
// time or on a stepped virtual clock.
package clock

import (
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
)

// Timer is a one-shot timer that can be stopped before it fires.
type Timer interface {
	Stop() bool
}

// Clock arms one-shot timers and tells the time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is backed by the time package. Callbacks run on their own goroutine.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// DefaultStep is the virtual clock resolution.
const DefaultStep = time.Millisecond

// Virtual runs on an mclock.Simulated clock. Time only moves through Advance,
// one step at a time. Every timer due within a step fires on the advancing
// goroutine and sees Now() at the end of that step. A timer stopped while its
// step is already running still fires.
type Virtual struct {
	sim   mclock.Simulated
	start time.Time
	step  time.Duration
}

func NewVirtual(start time.Time, step time.Duration) *Virtual {
	if step <= 0 {
		step = DefaultStep
	}
	return &Virtual{start: start, step: step}
}

func (v *Virtual) Now() time.Time {
	return v.start.Add(time.Duration(v.sim.Now()))
}

func (v *Virtual) AfterFunc(d time.Duration, f func()) Timer {
	return v.sim.AfterFunc(d, f)
}

// Elapsed is the virtual time since the clock was created.
func (v *Virtual) Elapsed() time.Duration {
	return time.Duration(v.sim.Now())
}

// Pending returns the number of armed timers.
func (v *Virtual) Pending() int {
	return v.sim.ActiveTimers()
}

// Advance moves the clock forward by d in steps, firing every timer that
// falls due, including ones armed by callbacks along the way.
func (v *Virtual) Advance(d time.Duration) {
	for d > 0 {
		s := v.step
		if d < s {
			s = d
		}
		v.sim.Run(s)
		d -= s
	}
}
