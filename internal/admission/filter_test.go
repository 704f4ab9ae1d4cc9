package admission

import (
	"testing"

	"trickle-sim/internal/packet"
)

func frame(dst, src packet.Address, payload int) *packet.Frame {
	return &packet.Frame{PacketType: packet.PKT_TRICKLE, Dest: dst, Src: src, Payload: make([]byte, payload)}
}

func TestCheck(t *testing.T) {
	const local = 0x150c
	multi := New(Config{LocalAddr: local, HopSize: 1, MultiHop: true})
	single := New(Config{LocalAddr: local, HopSize: 1})
	long := packet.LongAddress([8]byte{0xde, 0xad})
	bcast := packet.BroadcastShort()

	cases := []struct {
		name string
		f    Filter
		fr   *packet.Frame
		want Verdict
	}{
		{"unicast to us", multi, frame(packet.ShortAddress(local), packet.ShortAddress(local+1), 4), NotBroadcast},
		{"unicast from self", single, frame(packet.ShortAddress(0x0001), packet.ShortAddress(local), 4), NotBroadcast},
		{"unicast long", single, frame(long, packet.ShortAddress(local), 4), NotBroadcast},
		{"no destination", single, frame(packet.Address{}, packet.ShortAddress(local), 4), NoDestination},
		{"long broadcast", single, frame(packet.BroadcastLong(), long, 4), Admitted},
		{"distance 0", multi, frame(bcast, packet.ShortAddress(local), 4), Admitted},
		{"distance 1 above", multi, frame(bcast, packet.ShortAddress(local+1), 4), Admitted},
		{"distance 1 below", multi, frame(bcast, packet.ShortAddress(local-1), 4), Admitted},
		{"distance 2", multi, frame(bcast, packet.ShortAddress(local+2), 4), OutOfHopRange},
		{"distance 2 below", multi, frame(bcast, packet.ShortAddress(local-2), 4), OutOfHopRange},
		{"far away single hop", single, frame(bcast, packet.ShortAddress(0x0001), 4), Admitted},
		{"long source multi hop", multi, frame(bcast, long, 4), SourceNotShort},
		{"no source multi hop", multi, frame(bcast, packet.Address{}, 4), SourceNotShort},
		{"short payload", multi, frame(bcast, packet.ShortAddress(local), 3), ShortPayload},
		{"long payload", multi, frame(bcast, packet.ShortAddress(local), 10), Admitted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.f.Check(tc.fr); got != tc.want {
				t.Fatalf("Check=%v, want %v", got, tc.want)
			}
			if tc.f.Admit(tc.fr) != (tc.want == Admitted) {
				t.Fatalf("Admit disagrees with Check")
			}
		})
	}
}

func TestNearAddressZero(t *testing.T) {
	f := New(Config{LocalAddr: 0, HopSize: 1, MultiHop: true})
	if v := f.Check(frame(packet.BroadcastShort(), packet.ShortAddress(0xFFFE), 4)); v != OutOfHopRange {
		t.Fatalf("0xFFFE vs 0: %v", v)
	}
	if v := f.Check(frame(packet.BroadcastShort(), packet.ShortAddress(1), 4)); v != Admitted {
		t.Fatalf("1 vs 0: %v", v)
	}
}
