package trickle

import (
	"fmt"
	"math"
	"time"
)

// Value is the single piece of state a node disseminates.
type Value int32

// Ordering reports whether candidate is more recent than current.
type Ordering func(candidate, current Value) bool

// IntegerOrder treats larger values as more recent. No wrap-around handling.
func IntegerOrder(candidate, current Value) bool {
	return candidate > current
}

// SerialOrder compares values with RFC 1982 serial number arithmetic so that
// fixed-width counters may wrap. Values exactly half the space apart are
// undefined by the RFC and never considered newer.
func SerialOrder(candidate, current Value) bool {
	d := int32(uint32(candidate) - uint32(current))
	return d > 0
}

// OrderingByName maps a scenario name onto an Ordering.
func OrderingByName(name string) (Ordering, error) {
	switch name {
	case "", "integer":
		return IntegerOrder, nil
	case "serial":
		return SerialOrder, nil
	default:
		return nil, fmt.Errorf("unknown value ordering %q (want integer or serial)", name)
	}
}

// Config holds the static per-node Trickle constants.
type Config struct {
	IntervalMin  time.Duration // I_min
	MaxDoublings uint          // I_max expressed as doublings of I_min
	Redundancy   uint          // k
	InitialValue Value
	Newer        Ordering // nil means IntegerOrder
}

// IntervalMax returns IntervalMin * 2^MaxDoublings.
func (c Config) IntervalMax() time.Duration {
	return c.IntervalMin << c.MaxDoublings
}

// Validate checks the constants can drive the state machine.
func (c Config) Validate() error {
	if c.IntervalMin < 2 {
		return fmt.Errorf("interval_min must be at least 2 time units, got %d", c.IntervalMin)
	}
	if c.MaxDoublings >= 63 || c.IntervalMin > time.Duration(math.MaxInt64>>c.MaxDoublings) {
		return fmt.Errorf("interval_min %v with %d doublings overflows", c.IntervalMin, c.MaxDoublings)
	}
	return nil
}
