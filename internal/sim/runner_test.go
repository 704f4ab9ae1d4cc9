package sim

import (
	"context"
	"testing"
	"time"

	eb "trickle-sim/internal/eventBus"
	"trickle-sim/internal/metrics"
)

func virtualScenario() *Scenario {
	sc := &Scenario{
		Duration: 20 * time.Second,
		Seed:     3,
		Virtual:  true,
		Nodes:    NodeCfg{Count: 3, Spacing: 100},
		Trickle:  TrickleCfg{IntervalMin: 100 * time.Millisecond},
		Radio:    RadioCfg{MaxRange: 150},
		Triggers: []Trigger{{At: time.Second, Node: DefaultBaseAddress, Press: true}},
	}
	d, k := uint(4), uint(2)
	sc.Trickle.MaxDoublings, sc.Trickle.Redundancy = &d, &k
	sc.ApplyDefaults()
	return sc
}

func TestVirtualRunConverges(t *testing.T) {
	sc := virtualScenario()
	if err := sc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	coll := metrics.NewCollector()
	r, err := NewRunner(sc, eb.NewEventBus(), coll)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rep := r.Report()
	if !rep.Converged || rep.Value != 1 || len(rep.Values) != 3 {
		t.Fatalf("report = %s", rep)
	}
	if rep.Elapsed != sc.Duration {
		t.Fatalf("virtual run covered %v, want %v", rep.Elapsed, sc.Duration)
	}
	if n := coll.Adopters(1); n != 2 {
		t.Fatalf("adopters of 1 = %d", n)
	}
	snap := coll.Snapshot()
	if snap.LocalTriggers != 1 || snap.TotalSent == 0 || snap.IntervalStarts == 0 {
		t.Fatalf("counters = %+v", snap.Counters)
	}
	if len(r.Network().Nodes()) != 0 {
		t.Fatalf("nodes still joined after Run")
	}
}

func TestVirtualRunIsDeterministic(t *testing.T) {
	run := func() metrics.Report {
		coll := metrics.NewCollector()
		r, err := NewRunner(virtualScenario(), eb.NewEventBus(), coll)
		if err != nil {
			t.Fatalf("NewRunner: %v", err)
		}
		if err := r.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
		return coll.Snapshot()
	}
	a, b := run(), run()
	if a.TotalSent != b.TotalSent || a.TotalSuppressed != b.TotalSuppressed || a.Resets != b.Resets {
		t.Fatalf("runs differ: %+v vs %+v", a.Counters, b.Counters)
	}
	if a.Values[0].MaxDelay != b.Values[0].MaxDelay {
		t.Fatalf("delays differ: %s vs %s", a.Values[0].MaxDelay, b.Values[0].MaxDelay)
	}
}

func TestCancelledVirtualRun(t *testing.T) {
	sc := virtualScenario()
	sc.Duration = time.Hour
	r, err := NewRunner(sc, eb.NewEventBus(), metrics.NewCollector())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Report().Elapsed >= time.Hour {
		t.Fatalf("cancelled run played to the end")
	}
}
