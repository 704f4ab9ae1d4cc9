package node

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"trickle-sim/internal/admission"
	"trickle-sim/internal/clock"
	"trickle-sim/internal/eventBus"
	"trickle-sim/internal/indicator"
	"trickle-sim/internal/mesh"
	"trickle-sim/internal/packet"
	"trickle-sim/internal/radio"
	"trickle-sim/internal/trickle"
)

const defaultQueueSize = 64

type eventKind uint8

const (
	evFrame eventKind = iota
	evTimer
	evPress
	evSet
)

// nodeEvent is one entry of the node's single-consumer queue.
type nodeEvent struct {
	kind  eventKind
	pkt   []byte
	timer trickle.TimerKind
	epoch uint64
	value int32
}

type Config struct {
	Addr      uint16
	Position  mesh.Coordinates
	Trickle   trickle.Config
	HopSize   uint16
	MultiHop  bool
	CCA       bool
	Inline    bool // dispatch on the caller's goroutine, for virtual time
	QueueSize int
}

// nodeImpl glues the Trickle engine to the medium. Every input (frames,
// timer firings, operator triggers) goes through dispatch one at a time.
type nodeImpl struct {
	addr uint16

	muPos       sync.RWMutex
	coordinates mesh.Coordinates

	engine    *trickle.Engine
	filter    admission.Filter
	radio     *radio.Radio
	indicator *indicator.Indicator
	clock     clock.Clock

	inline   bool
	dispatch sync.Mutex
	messages chan nodeEvent
	quit     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool

	timerMu sync.Mutex
	timers  map[trickle.TimerKind]clock.Timer

	staleFirings atomic.Uint64

	eventBus *eventBus.EventBus
}

// NewNode creates a node. The engine is built but not started; call Start
// before joining the node to a network.
func NewNode(cfg Config, net mesh.INetwork, clk clock.Clock, rng trickle.RandomSource, bus *eventBus.EventBus) (mesh.INode, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	n := &nodeImpl{
		addr:        cfg.Addr,
		coordinates: cfg.Position,
		filter:      admission.New(admission.Config{LocalAddr: cfg.Addr, HopSize: cfg.HopSize, MultiHop: cfg.MultiHop}),
		indicator:   indicator.New(cfg.Addr),
		clock:       clk,
		inline:      cfg.Inline,
		messages:    make(chan nodeEvent, cfg.QueueSize),
		quit:        make(chan struct{}),
		timers:      make(map[trickle.TimerKind]clock.Timer),
		eventBus:    bus,
	}
	n.radio = radio.New(cfg.Addr, net, n, cfg.CCA)

	engine, err := trickle.NewEngine(cfg.Trickle, trickle.Deps{
		Random:    rng,
		Scheduler: n,
		Transport: n.radio,
		Notifier:  n,
		Observer:  n,
		Logger:    log.New(log.Writer(), fmt.Sprintf("%04x ", cfg.Addr), log.Flags()|log.Lmsgprefix),
	})
	if err != nil {
		return nil, fmt.Errorf("node %04x: %w", cfg.Addr, err)
	}
	n.engine = engine
	log.Printf("[sim] Created new node %04x, x: %f, y: %f", cfg.Addr, cfg.Position.X, cfg.Position.Y)
	return n, nil
}

// GetAddr returns the node's short address.
func (n *nodeImpl) GetAddr() uint16 {
	return n.addr
}

// Start begins the first Trickle interval. An entropy failure is reported
// but not returned: the node keeps running and retries next interval.
func (n *nodeImpl) Start() error {
	n.dispatch.Lock()
	defer n.dispatch.Unlock()
	err := n.engine.Start()
	if errors.Is(err, trickle.ErrEntropyUnavailable) {
		n.handleErr(err)
		return nil
	}
	return err
}

// Run is the main goroutine for the node, processing queued events.
func (n *nodeImpl) Run() {
	log.Printf("Node %04x: started.\n", n.addr)
	defer log.Printf("Node %04x: stopped.\n", n.addr)

	for {
		select {
		case ev := <-n.messages:
			n.handle(ev)
		case <-n.quit:
			return
		}
	}
}

// Stop ends Run and cancels armed timers. Later inputs are dropped.
func (n *nodeImpl) Stop() {
	n.stopOnce.Do(func() {
		n.stopped.Store(true)
		close(n.quit)
		n.timerMu.Lock()
		for k, t := range n.timers {
			t.Stop()
			delete(n.timers, k)
		}
		n.timerMu.Unlock()
	})
}

// Deliver hands a frame heard on the medium to the node.
func (n *nodeImpl) Deliver(receivedPacket []byte) {
	n.post(nodeEvent{kind: evFrame, pkt: receivedPacket})
}

// PressButton simulates the board button: a local change to value+1.
func (n *nodeImpl) PressButton() {
	n.post(nodeEvent{kind: evPress})
}

// SetValue injects an explicit local value.
func (n *nodeImpl) SetValue(v int32) {
	n.post(nodeEvent{kind: evSet, value: v})
}

func (n *nodeImpl) post(ev nodeEvent) {
	if n.stopped.Load() {
		return
	}
	if n.inline {
		n.handle(ev)
		return
	}
	select {
	case n.messages <- ev:
	case <-n.quit:
	}
}

func (n *nodeImpl) handle(ev nodeEvent) {
	n.dispatch.Lock()
	defer n.dispatch.Unlock()
	if n.stopped.Load() {
		return
	}
	switch ev.kind {
	case evFrame:
		n.handleFrame(ev.pkt)
	case evTimer:
		n.handleErr(n.engine.OnTimerFired(ev.timer, ev.epoch))
	case evPress:
		v := int32(n.engine.Value()) + 1
		n.publish(eventBus.Event{Type: eventBus.EventLocalTrigger, Value: v, Payload: "button"})
		n.handleErr(n.engine.OnLocalValueChange(trickle.Value(v)))
	case evSet:
		n.publish(eventBus.Event{Type: eventBus.EventLocalTrigger, Value: ev.value, Payload: "set"})
		n.handleErr(n.engine.OnLocalValueChange(trickle.Value(ev.value)))
	}
}

func (n *nodeImpl) handleFrame(receivedPacket []byte) {
	var f packet.Frame
	if err := f.Deserialise(receivedPacket); err != nil {
		n.publish(eventBus.Event{Type: eventBus.EventFrameDropped, Reason: "malformed"})
		return
	}
	if f.PacketType != packet.PKT_TRICKLE {
		n.publish(eventBus.Event{Type: eventBus.EventFrameDropped, Reason: "unknown_type"})
		return
	}
	src := f.Src.Short
	if verdict := n.filter.Check(&f); verdict != admission.Admitted {
		n.publish(eventBus.Event{Type: eventBus.EventFrameDropped, OtherAddr: src, Reason: verdict.String()})
		return
	}
	v, err := packet.DecodeValue(f.Payload)
	if err != nil {
		n.publish(eventBus.Event{Type: eventBus.EventFrameDropped, OtherAddr: src, Reason: "short_payload"})
		return
	}
	n.publish(eventBus.Event{Type: eventBus.EventFrameDelivered, OtherAddr: src, Value: v})
	n.handleErr(n.engine.OnFrameReceived(trickle.Value(v)))
}

func (n *nodeImpl) handleErr(err error) {
	switch {
	case err == nil:
	case errors.Is(err, trickle.ErrStaleTimer):
		n.staleFirings.Add(1)
	case errors.Is(err, trickle.ErrEntropyUnavailable):
		log.Printf("[trickle] Node %04x: %v\n", n.addr, err)
		n.publish(eventBus.Event{Type: eventBus.EventEntropyFailed, Reason: err.Error()})
	case errors.Is(err, trickle.ErrTransmitFailed):
		log.Printf("[trickle] Node %04x: %v\n", n.addr, err)
		n.publish(eventBus.Event{Type: eventBus.EventTransmitFailed, Reason: err.Error()})
	default:
		log.Printf("[trickle] Node %04x: %v\n", n.addr, err)
	}
}

// ScheduleOnce arms a timer whose firing is queued like any other input.
// Arming a kind again stops the previous timer of that kind.
func (n *nodeImpl) ScheduleOnce(delay time.Duration, kind trickle.TimerKind, epoch uint64) {
	t := n.clock.AfterFunc(delay, func() {
		n.post(nodeEvent{kind: evTimer, timer: kind, epoch: epoch})
	})
	n.timerMu.Lock()
	if old, ok := n.timers[kind]; ok {
		old.Stop()
	}
	n.timers[kind] = t
	n.timerMu.Unlock()
}

// ValueChanged drives the indicators and announces the new value.
func (n *nodeImpl) ValueChanged(v trickle.Value) {
	n.indicator.ValueChanged(int32(v))
	n.publish(eventBus.Event{Type: eventBus.EventValueChanged, Value: int32(v)})
}

func (n *nodeImpl) IntervalStarted(interval, window time.Duration) {
	n.publish(eventBus.Event{Type: eventBus.EventIntervalStarted, Interval: interval, Window: window})
}

func (n *nodeImpl) Transmitted(v trickle.Value) {
	n.publish(eventBus.Event{Type: eventBus.EventFrameSent, Value: int32(v)})
}

func (n *nodeImpl) Suppressed(heard uint) {
	n.publish(eventBus.Event{Type: eventBus.EventFrameSuppressed, Payload: fmt.Sprintf("heard %d", heard)})
}

func (n *nodeImpl) IntervalReset(from time.Duration) {
	n.publish(eventBus.Event{Type: eventBus.EventIntervalReset, Interval: from})
}

func (n *nodeImpl) publish(e eventBus.Event) {
	pos := n.GetPosition()
	e.NodeAddr = n.addr
	e.Timestamp = n.clock.Now()
	e.X, e.Y = pos.X, pos.Y
	n.eventBus.Publish(e)
}

// Status returns the engine state together with indicator levels.
func (n *nodeImpl) Status() mesh.NodeStatus {
	st := n.engine.Snapshot()
	led, gpio := n.indicator.State()
	pos := n.GetPosition()
	return mesh.NodeStatus{
		Addr:     n.addr,
		Value:    int32(st.Value),
		Interval: st.Interval,
		Window:   st.Window,
		Heard:    st.Heard,
		Epoch:    st.Epoch,
		LED:      led,
		GPIO:     gpio,
		X:        pos.X,
		Y:        pos.Y,
	}
}

func (n *nodeImpl) GetPosition() mesh.Coordinates {
	n.muPos.RLock()
	defer n.muPos.RUnlock()
	return n.coordinates
}

func (n *nodeImpl) SetPosition(coord mesh.Coordinates) {
	n.muPos.Lock()
	n.coordinates = coord
	n.muPos.Unlock()
}

// PrintNodeDetails prints the details of a node in a nicely formatted way
func (n *nodeImpl) PrintNodeDetails() {
	st := n.Status()
	fmt.Println("====================================")
	fmt.Println("Node Details:")
	fmt.Printf("  Address:     %04x\n", st.Addr)
	fmt.Printf("  Coordinates: (X: %.2f, Y: %.2f)\n", st.X, st.Y)
	fmt.Printf("  Value:       %d\n", st.Value)
	fmt.Printf("  Interval:    %v (t=%v, c=%d, epoch=%d)\n", st.Interval, st.Window, st.Heard, st.Epoch)
	fmt.Printf("  LED:         %v  GPIO: %v\n", st.LED, st.GPIO)
	fmt.Printf("  Messages:    %d events in queue\n", len(n.messages))
	fmt.Printf("  Stale timer firings: %d\n", n.staleFirings.Load())
	fmt.Println("====================================")
}
