// Package radio is the Trickle transport: it frames a value and puts it on
// the shared medium after an optional clear channel assessment.
package radio

import (
	"errors"
	"log"
	"sync/atomic"

	"trickle-sim/internal/mesh"
	"trickle-sim/internal/packet"
	"trickle-sim/internal/trickle"
)

var ErrChannelBusy = errors.New("radio: channel busy")

type Radio struct {
	src  packet.Address
	net  mesh.INetwork
	self mesh.INode
	cca  bool
	seq  atomic.Uint32
}

// New returns a radio sending from the short address addr on behalf of self.
func New(addr uint16, net mesh.INetwork, self mesh.INode, cca bool) *Radio {
	return &Radio{src: packet.ShortAddress(addr), net: net, self: self, cca: cca}
}

// Broadcast is fire-and-forget: a nil error means the frame went on air, not
// that anyone heard it. With CCA enabled a busy channel fails the send and
// nothing is retried here.
func (r *Radio) Broadcast(v trickle.Value) error {
	pid := uint32(r.src.Short)<<16 | r.seq.Add(1)&0xFFFF
	pkt, pid, err := packet.CreateTricklePacket(r.src, int32(v), pid)
	if err != nil {
		return err
	}
	if r.cca && !r.net.IsChannelFree(r.self) {
		log.Printf("[radio] Node %s: channel busy, frame %08x not sent\n", r.src, pid)
		return ErrChannelBusy
	}
	r.net.BroadcastMessage(pkt, r.self, pid)
	return nil
}
