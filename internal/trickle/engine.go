// Package trickle implements the Trickle timer: a node retransmits its value
// at most once per interval, suppresses the retransmission once it has heard
// k consistent copies, doubles the interval while everyone agrees and drops
// back to the minimum as soon as disagreement is observed.
package trickle

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// TimerKind identifies one of the two independent one-shot timers.
type TimerKind uint8

const (
	TimerMid TimerKind = iota // transmit decision at t
	TimerEnd                  // end of interval at i
)

func (k TimerKind) String() string {
	switch k {
	case TimerMid:
		return "mid"
	case TimerEnd:
		return "end"
	default:
		return fmt.Sprintf("TimerKind(%d)", uint8(k))
	}
}

// RandomSource returns a uniformly distributed integer in [min, max).
type RandomSource interface {
	Uniform(min, max int64) (int64, error)
}

// Scheduler arms a one-shot timer. When it fires the host must call
// Engine.OnTimerFired with the same kind and epoch.
type Scheduler interface {
	ScheduleOnce(delay time.Duration, kind TimerKind, epoch uint64)
}

// Transport broadcasts the current value. Best effort.
type Transport interface {
	Broadcast(v Value) error
}

// Notifier is told whenever the node adopts a new value.
type Notifier interface {
	ValueChanged(v Value)
}

// Observer receives lifecycle notifications, used for events and metrics.
type Observer interface {
	IntervalStarted(interval, window time.Duration)
	Transmitted(v Value)
	Suppressed(heard uint)
	IntervalReset(from time.Duration)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) IntervalStarted(time.Duration, time.Duration) {}
func (NopObserver) Transmitted(Value)                           {}
func (NopObserver) Suppressed(uint)                             {}
func (NopObserver) IntervalReset(time.Duration)                 {}

type nopNotifier struct{}

func (nopNotifier) ValueChanged(Value) {}

// Deps bundles the collaborators of an Engine. Random, Scheduler and
// Transport are required.
type Deps struct {
	Random    RandomSource
	Scheduler Scheduler
	Transport Transport
	Notifier  Notifier
	Observer  Observer
	Logger    *log.Logger
}

// State is a copy of the engine's mutable state.
type State struct {
	Interval    time.Duration // i
	Window      time.Duration // t, offset of the transmit decision
	Heard       uint          // c
	Value       Value
	Epoch       uint64
	WindowValid bool
}

// Engine owns the Trickle state of one node. All methods are safe for
// concurrent use. Collaborators are called with the engine lock held and
// must not call back into the engine synchronously.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	iMax    time.Duration
	st      State
	started bool

	rng    RandomSource
	sched  Scheduler
	tx     Transport
	notify Notifier
	obs    Observer
	logger *log.Logger
}

// NewEngine validates the configuration and wires the collaborators. The
// engine does nothing until Start is called.
func NewEngine(cfg Config, d Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d.Random == nil || d.Scheduler == nil || d.Transport == nil {
		return nil, fmt.Errorf("trickle: random source, scheduler and transport are required")
	}
	if cfg.Newer == nil {
		cfg.Newer = IntegerOrder
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Observer == nil {
		d.Observer = NopObserver{}
	}
	if d.Logger == nil {
		d.Logger = log.New(io.Discard, "", 0)
	}
	return &Engine{
		cfg:    cfg,
		iMax:   cfg.IntervalMax(),
		rng:    d.Random,
		sched:  d.Scheduler,
		tx:     d.Transport,
		notify: d.Notifier,
		obs:    d.Observer,
		logger: d.Logger,
	}, nil
}

// Start initialises the state and begins the first interval. A returned
// ErrEntropyUnavailable leaves the engine started, the next interval retries.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}
	e.st = State{Interval: e.cfg.IntervalMin, Value: e.cfg.InitialValue}
	e.started = true
	return e.beginInterval()
}

// beginInterval resets c, draws t in [i/2, i) and arms both timers under a
// fresh epoch so that anything armed earlier becomes stale.
func (e *Engine) beginInterval() error {
	e.st.Heard = 0
	e.st.Epoch++
	half := e.st.Interval / 2

	r, err := e.rng.Uniform(0, int64(half))
	if err == nil && (r < 0 || r >= int64(half)) {
		err = fmt.Errorf("draw %d outside [0, %d)", r, int64(half))
	}
	if err != nil {
		e.st.Window = 0
		e.st.WindowValid = false
		e.sched.ScheduleOnce(e.st.Interval, TimerEnd, e.st.Epoch)
		return fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}

	e.st.Window = half + time.Duration(r)
	e.st.WindowValid = true
	e.sched.ScheduleOnce(e.st.Window, TimerMid, e.st.Epoch)
	e.sched.ScheduleOnce(e.st.Interval, TimerEnd, e.st.Epoch)
	e.obs.IntervalStarted(e.st.Interval, e.st.Window)
	return nil
}

// OnTimerFired dispatches a timer firing to the matching handler.
func (e *Engine) OnTimerFired(kind TimerKind, epoch uint64) error {
	switch kind {
	case TimerMid:
		return e.OnMidIntervalFired(epoch)
	case TimerEnd:
		return e.OnIntervalEndFired(epoch)
	default:
		return fmt.Errorf("trickle: unknown timer %v", kind)
	}
}

// OnMidIntervalFired transmits the current value unless k consistent frames
// were already heard in this interval.
func (e *Engine) OnMidIntervalFired(epoch uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkFiring(epoch); err != nil {
		return err
	}
	if !e.st.WindowValid {
		return nil
	}
	if e.st.Heard >= e.cfg.Redundancy {
		e.obs.Suppressed(e.st.Heard)
		return nil
	}
	if err := e.tx.Broadcast(e.st.Value); err != nil {
		return fmt.Errorf("%w: %v", ErrTransmitFailed, err)
	}
	e.obs.Transmitted(e.st.Value)
	return nil
}

// OnIntervalEndFired doubles the interval, clamped to I_max, and starts the
// next one.
func (e *Engine) OnIntervalEndFired(epoch uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkFiring(epoch); err != nil {
		return err
	}
	e.logger.Printf("[trickle] interval end: i=%v t=%v c=%d", e.st.Interval, e.st.Window, e.st.Heard)
	if e.st.Interval > e.iMax/2 {
		e.st.Interval = e.iMax
	} else {
		e.st.Interval *= 2
	}
	return e.beginInterval()
}

func (e *Engine) checkFiring(epoch uint64) error {
	if !e.started {
		return ErrNotStarted
	}
	if epoch != e.st.Epoch {
		return ErrStaleTimer
	}
	return nil
}

// OnFrameReceived classifies an admitted frame's value as consistent or
// inconsistent with ours.
func (e *Engine) OnFrameReceived(v Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return ErrNotStarted
	}
	if v == e.st.Value {
		e.st.Heard++
		return nil
	}
	return e.inconsistent(v)
}

// OnLocalValueChange injects a locally originated value. It follows the
// inconsistent-transmission rule; setting the value we already hold does
// nothing.
func (e *Engine) OnLocalValueChange(v Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return ErrNotStarted
	}
	if v == e.st.Value {
		return nil
	}
	return e.inconsistent(v)
}

// inconsistent adopts v if it is newer, then restarts at I_min regardless of
// adoption. Already at I_min means nothing to reset.
func (e *Engine) inconsistent(v Value) error {
	e.logger.Printf("[trickle] inconsistent transmission: got %d, hold %d", v, e.st.Value)
	if e.cfg.Newer(v, e.st.Value) {
		e.st.Value = v
		e.notify.ValueChanged(v)
	}
	if e.st.Interval <= e.cfg.IntervalMin {
		return nil
	}
	from := e.st.Interval
	e.st.Interval = e.cfg.IntervalMin
	e.obs.IntervalReset(from)
	return e.beginInterval()
}

// Value returns the value currently held.
func (e *Engine) Value() Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.Value
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st
}

// Config returns the constants the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}
