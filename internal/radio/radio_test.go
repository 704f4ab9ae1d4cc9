package radio

import (
	"testing"

	"trickle-sim/internal/mesh"
	"trickle-sim/internal/packet"
)

type fakeNet struct {
	mesh.INetwork
	free bool
	sent [][]byte
	ids  []uint32
}

func (f *fakeNet) IsChannelFree(mesh.INode) bool { return f.free }

func (f *fakeNet) BroadcastMessage(pkt []byte, _ mesh.INode, id uint32) {
	f.sent = append(f.sent, pkt)
	f.ids = append(f.ids, id)
}

func TestBroadcastFramesValue(t *testing.T) {
	net := &fakeNet{free: true}
	r := New(0x150c, net, nil, true)
	if err := r.Broadcast(7); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if err := r.Broadcast(8); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(net.sent) != 2 {
		t.Fatalf("sent %d frames", len(net.sent))
	}
	if net.ids[0] != 0x150c0001 || net.ids[1] != 0x150c0002 {
		t.Fatalf("packet ids %08x %08x", net.ids[0], net.ids[1])
	}

	var f packet.Frame
	if err := f.Deserialise(net.sent[1]); err != nil {
		t.Fatalf("Deserialise: %v", err)
	}
	v, err := packet.DecodeValue(f.Payload)
	if err != nil || v != 8 {
		t.Fatalf("payload value %d, err %v", v, err)
	}
	if !f.Dest.IsBroadcast() || f.Src.Short != 0x150c {
		t.Fatalf("addresses dst=%s src=%s", f.Dest, f.Src)
	}
}

func TestBusyChannel(t *testing.T) {
	net := &fakeNet{}
	if err := New(1, net, nil, true).Broadcast(1); err != ErrChannelBusy {
		t.Fatalf("err = %v, want ErrChannelBusy", err)
	}
	if err := New(1, net, nil, false).Broadcast(1); err != nil {
		t.Fatalf("without CCA: %v", err)
	}
	if len(net.sent) != 1 {
		t.Fatalf("sent %d frames", len(net.sent))
	}
}
