package sim

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"trickle-sim/internal/clock"
	eb "trickle-sim/internal/eventBus"
	"trickle-sim/internal/mesh"
	"trickle-sim/internal/metrics"
	"trickle-sim/internal/network"
	"trickle-sim/internal/node"
	"trickle-sim/internal/random"
	"trickle-sim/internal/utils"
)

// Report is the end-of-run state of the network.
type Report struct {
	Converged bool             `json:"converged"`
	Value     int32            `json:"value"`
	Values    map[uint16]int32 `json:"values"`
	Elapsed   time.Duration    `json:"elapsed"`
}

type Runner struct {
	sc   *Scenario
	bus  *eb.EventBus
	coll *metrics.Collector

	clk    clock.Clock
	virtual *clock.Virtual // nil in real time
	net    *network.NetworkImpl
	nodes  []mesh.INode
	timers []clock.Timer

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
	report  Report
}

// NewRunner builds the medium and every node of the scenario. Nodes join
// when Run starts. The scenario must have defaults applied.
func NewRunner(sc *Scenario, bus *eb.EventBus, coll *metrics.Collector) (*Runner, error) {
	r := &Runner{sc: sc, bus: bus, coll: coll}
	if sc.Virtual {
		r.virtual = clock.NewVirtual(time.Unix(0, 0), sc.Step)
		r.clk = r.virtual
	} else {
		r.clk = clock.Real{}
	}
	r.net = network.NewNetwork(network.Config{
		MaxRange: sc.Radio.MaxRange,
		AirTime:  sc.Radio.AirTime,
		Loss:     sc.Radio.Loss,
		Seed:     sc.Seed,
	}, r.clk, bus)

	tcfg, err := sc.TrickleConfig()
	if err != nil {
		return nil, err
	}
	hopSize := DefaultHopSize
	if sc.Admission.HopSize != nil {
		hopSize = *sc.Admission.HopSize
	}
	for i := 0; i < sc.Nodes.Count; i++ {
		rng, err := random.New(sc.Entropy, sc.Seed+int64(i))
		if err != nil {
			return nil, err
		}
		pos := mesh.LinePosition(i, sc.Nodes.Spacing)
		if sc.Nodes.Placement == "grid" {
			pos = mesh.GridPosition(i, sc.Nodes.Count, sc.Nodes.Spacing)
		}
		n, err := node.NewNode(node.Config{
			Addr:     sc.Addr(i),
			Position: pos,
			Trickle:  tcfg,
			HopSize:  hopSize,
			MultiHop: sc.Admission.MultiHop == nil || *sc.Admission.MultiHop,
			CCA:      sc.Radio.CCA,
			Inline:   sc.Virtual,
		}, r.net, r.clk, rng, bus)
		if err != nil {
			return nil, err
		}
		r.nodes = append(r.nodes, n)
	}
	return r, nil
}

// Network exposes the medium to the HTTP and MQTT surfaces.
func (r *Runner) Network() *network.NetworkImpl {
	return r.net
}

// Clock is the clock the run is timed on.
func (r *Runner) Clock() clock.Clock {
	return r.clk
}

// Report returns the result of the last Run.
func (r *Runner) Report() Report {
	return r.report
}

// Run plays the scenario for its duration, or until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	sub := r.bus.SubscribeBuffered(1 << 16)
	consumed := make(chan struct{})
	go func() {
		r.consumeEvents(sub)
		close(consumed)
	}()

	if !r.sc.Virtual && r.sc.Logging.MonitorInterval > 0 {
		mctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go utils.MonitorResources(mctx, r.sc.Logging.MonitorInterval)
	}

	start := r.clk.Now()
	for i, n := range r.nodes {
		n := n
		if at := r.sc.JoinAt(i); at > 0 {
			r.timers = append(r.timers, r.clk.AfterFunc(at, func() { r.join(n) }))
		} else {
			r.join(n)
		}
	}
	for _, tr := range r.sc.Triggers {
		tr := tr
		r.timers = append(r.timers, r.clk.AfterFunc(tr.At, func() { r.fire(tr) }))
	}

	if r.virtual != nil {
		r.runVirtual(ctx)
	} else {
		select {
		case <-ctx.Done():
			log.Printf("[sim] run interrupted: %v", ctx.Err())
		case <-time.After(r.sc.Duration):
		}
	}

	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()
	for _, t := range r.timers {
		t.Stop()
	}
	r.report = r.summarise(r.clk.Now().Sub(start))
	r.net.LeaveAll()
	r.wg.Wait()

	r.bus.Unsubscribe(sub)
	<-consumed
	return nil
}

// Virtual time advances in slices of 1024 steps; ctx is polled between them.
func (r *Runner) runVirtual(ctx context.Context) {
	step := r.sc.Step
	if step <= 0 {
		step = clock.DefaultStep
	}
	slice := 1024 * step
	for left := r.sc.Duration - r.virtual.Elapsed(); left > 0; left = r.sc.Duration - r.virtual.Elapsed() {
		if ctx.Err() != nil {
			log.Printf("[sim] run interrupted at %v: %v", r.virtual.Elapsed(), ctx.Err())
			return
		}
		if left > slice {
			left = slice
		}
		r.virtual.Advance(left)
	}
}

// join starts the engine before the node can hear any frame.
func (r *Runner) join(n mesh.INode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return
	}
	if err := n.Start(); err != nil {
		log.Printf("[sim] Node %04x: start failed: %v", n.GetAddr(), err)
		return
	}
	if !r.sc.Virtual {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			n.Run()
		}()
	}
	r.net.Join(n)
}

func (r *Runner) fire(tr Trigger) {
	n, err := r.net.GetNode(tr.Node)
	if err != nil {
		log.Printf("[sim] trigger at %v: %v", tr.At, err)
		return
	}
	if tr.Value != nil {
		log.Printf("[sim] Node %04x: set value %d", tr.Node, *tr.Value)
		n.SetValue(*tr.Value)
		return
	}
	log.Printf("[sim] Node %04x: button pressed", tr.Node)
	n.PressButton()
}

func (r *Runner) consumeEvents(ch chan eb.Event) {
	for ev := range ch {
		r.coll.Consume(ev)
	}
}

func (r *Runner) summarise(elapsed time.Duration) Report {
	rep := Report{Converged: true, Values: make(map[uint16]int32), Elapsed: elapsed}
	nodes := r.net.Nodes()
	for i, n := range nodes {
		st := n.Status()
		log.Printf("[sim] Node %04x: value %d, interval %v, led %v", st.Addr, st.Value, st.Interval, st.LED)
		rep.Values[st.Addr] = st.Value
		if i == 0 {
			rep.Value = st.Value
		} else if st.Value != rep.Value {
			rep.Converged = false
		}
	}
	if len(nodes) == 0 {
		rep.Converged = false
	}
	log.Printf("[sim] %s", rep)
	return rep
}

func (rep Report) String() string {
	if !rep.Converged {
		return fmt.Sprintf("not converged after %v: %v", rep.Elapsed, rep.Values)
	}
	return fmt.Sprintf("converged on %d across %d nodes after %v", rep.Value, len(rep.Values), rep.Elapsed)
}
