// Package admission decides which received frames the Trickle engine sees.
// Only broadcast dissemination is modelled. With multi-hop simulation on,
// nodes additionally ignore sources whose short address is further than the
// hop bound from their own; address distance stands in for radio reach and
// says nothing about real topology.
package admission

import (
	"fmt"

	"trickle-sim/internal/packet"
)

// Verdict is the outcome of checking one frame.
type Verdict uint8

const (
	Admitted Verdict = iota
	NoDestination
	NotBroadcast
	SourceNotShort
	OutOfHopRange
	ShortPayload
)

func (v Verdict) String() string {
	switch v {
	case Admitted:
		return "admitted"
	case NoDestination:
		return "no_destination"
	case NotBroadcast:
		return "not_broadcast"
	case SourceNotShort:
		return "source_not_short"
	case OutOfHopRange:
		return "out_of_hop_range"
	case ShortPayload:
		return "short_payload"
	default:
		return fmt.Sprintf("verdict(%d)", uint8(v))
	}
}

// Config is the static node configuration the filter needs.
type Config struct {
	LocalAddr uint16
	HopSize   uint16
	MultiHop  bool
}

// Filter is stateless; the zero value admits every broadcast frame.
type Filter struct {
	cfg Config
}

func New(cfg Config) Filter {
	return Filter{cfg: cfg}
}

// Check classifies a parsed frame.
func (f Filter) Check(fr *packet.Frame) Verdict {
	if fr.Dest.Mode == packet.ADDR_NONE {
		return NoDestination
	}
	if !fr.Dest.IsBroadcast() {
		return NotBroadcast
	}
	if f.cfg.MultiHop {
		if fr.Src.Mode != packet.ADDR_SHORT {
			return SourceNotShort
		}
		d := int(fr.Src.Short) - int(f.cfg.LocalAddr)
		if d < 0 {
			d = -d
		}
		if d > int(f.cfg.HopSize) {
			return OutOfHopRange
		}
	}
	if len(fr.Payload) < packet.ValueSize {
		return ShortPayload
	}
	return Admitted
}

// Admit reports whether the frame should reach the engine.
func (f Filter) Admit(fr *packet.Frame) bool {
	return f.Check(fr) == Admitted
}
