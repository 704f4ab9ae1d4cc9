package metrics

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	eb "trickle-sim/internal/eventBus"
)

type Counters struct {
	TotalSent        uint64            `json:"total_sent"`
	TotalSuppressed  uint64            `json:"total_suppressed"`
	TotalDelivered   uint64            `json:"total_delivered"`
	Dropped          map[string]uint64 `json:"dropped_by_reason"`
	Collisions       uint64            `json:"collisions"`
	Lost             uint64            `json:"lost"`
	TransmitFailures uint64            `json:"transmit_failures"`
	EntropyFailures  uint64            `json:"entropy_failures"`
	Resets           uint64            `json:"resets"`
	ValueChanges     uint64            `json:"value_changes"`
	IntervalStarts   uint64            `json:"interval_starts"`
	LocalTriggers    uint64            `json:"local_triggers"`
}

// Propagation describes how one value spread from its origin.
type Propagation struct {
	Value     int32     `json:"value"`
	Origin    uint16    `json:"origin"`
	Start     time.Time `json:"start"`
	Adoptions int       `json:"adoptions"`
	MinDelay  string    `json:"min_delay"`
	MeanDelay string    `json:"mean_delay"`
	MaxDelay  string    `json:"max_delay"`
}

type valueTrack struct {
	origin   uint16
	start    time.Time
	adopters map[uint16]time.Duration
}

type Report struct {
	Counters
	Values []Propagation `json:"values"`
}

type Collector struct {
	mu sync.Mutex
	Counters
	values map[int32]*valueTrack
}

func NewCollector() *Collector {
	return &Collector{
		Counters: Counters{Dropped: make(map[string]uint64)},
		values:   make(map[int32]*valueTrack),
	}
}

// Consume folds one bus event into the counters.
func (c *Collector) Consume(ev eb.Event) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Type {
	case eb.EventFrameSent:
		c.TotalSent++
	case eb.EventFrameSuppressed:
		c.TotalSuppressed++
	case eb.EventFrameDelivered:
		c.TotalDelivered++
	case eb.EventFrameDropped:
		c.Dropped[ev.Reason]++
	case eb.EventCollision:
		c.Collisions++
	case eb.EventLostFrame:
		c.Lost++
	case eb.EventTransmitFailed:
		c.TransmitFailures++
	case eb.EventEntropyFailed:
		c.EntropyFailures++
	case eb.EventIntervalReset:
		c.Resets++
	case eb.EventIntervalStarted:
		c.IntervalStarts++
	case eb.EventLocalTrigger:
		c.LocalTriggers++
		c.origin(ev)
	case eb.EventValueChanged:
		c.ValueChanges++
		c.adopt(ev)
	}
}

// caller holds c.mu
func (c *Collector) origin(ev eb.Event) *valueTrack {
	vt, ok := c.values[ev.Value]
	if !ok {
		vt = &valueTrack{origin: ev.NodeAddr, start: ev.Timestamp, adopters: make(map[uint16]time.Duration)}
		c.values[ev.Value] = vt
	}
	return vt
}

// A value change on the origin node is the trigger itself, not an adoption.
func (c *Collector) adopt(ev eb.Event) {
	vt := c.origin(ev)
	if ev.NodeAddr == vt.origin {
		return
	}
	if _, seen := vt.adopters[ev.NodeAddr]; seen {
		return
	}
	vt.adopters[ev.NodeAddr] = ev.Timestamp.Sub(vt.start)
}

// Adopters returns how many nodes other than the origin took value v.
func (c *Collector) Adopters(v int32) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if vt, ok := c.values[v]; ok {
		return len(vt.adopters)
	}
	return 0
}

// Snapshot returns a copy of the counters and per-value propagation figures.
func (c *Collector) Snapshot() Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := Report{Counters: c.Counters}
	r.Dropped = make(map[string]uint64, len(c.Dropped))
	for k, v := range c.Dropped {
		r.Dropped[k] = v
	}
	for v, vt := range c.values {
		p := Propagation{Value: v, Origin: vt.origin, Start: vt.start, Adoptions: len(vt.adopters)}
		if len(vt.adopters) > 0 {
			var min, max, sum time.Duration
			first := true
			for _, d := range vt.adopters {
				if first || d < min {
					min = d
				}
				if first || d > max {
					max = d
				}
				first = false
				sum += d
			}
			p.MinDelay = min.String()
			p.MaxDelay = max.String()
			p.MeanDelay = (sum / time.Duration(len(vt.adopters))).String()
		}
		r.Values = append(r.Values, p)
	}
	sort.Slice(r.Values, func(i, j int) bool { return r.Values[i].Start.Before(r.Values[j].Start) })
	return r
}

func (c *Collector) Flush(file string) error {
	r := c.Snapshot()
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
