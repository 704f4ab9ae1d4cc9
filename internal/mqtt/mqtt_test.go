package mqtt

import (
	"context"
	"fmt"
	"testing"
	"time"

	"trickle-sim/internal/eventBus"
	"trickle-sim/internal/mesh"
)

type fakeNode struct {
	mesh.INode
	addr    uint16
	presses int
	set     []int32
}

func (f *fakeNode) GetAddr() uint16 { return f.addr }
func (f *fakeNode) PressButton()    { f.presses++ }
func (f *fakeNode) SetValue(v int32) {
	f.set = append(f.set, v)
}
func (f *fakeNode) Status() mesh.NodeStatus {
	return mesh.NodeStatus{Addr: f.addr, Value: 99, Interval: 2500 * time.Millisecond}
}

type fakeNet struct {
	mesh.INetwork
	nodes map[uint16]*fakeNode
}

func (f *fakeNet) GetNode(addr uint16) (mesh.INode, error) {
	if n, ok := f.nodes[addr]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("node %04x not found", addr)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	out chan published
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	p.out <- published{topic: topic, payload: payload.([]byte)}
	return nil
}

func newFakeNet() (*fakeNet, *fakeNode) {
	n := &fakeNode{addr: 0x150c}
	return &fakeNet{nodes: map[uint16]*fakeNode{0x150c: n}}, n
}

func TestCommands(t *testing.T) {
	net, n := newFakeNet()
	handler := ProcessMqttCommand(net)
	handler(nil, fakeMessage{topic: "trickle/command", payload: []byte(`{"node_addr": 5388, "event": "press"}`)})
	handler(nil, fakeMessage{topic: "trickle/command", payload: []byte(`{"node_addr": 5388, "event": "set", "value": 12}`)})
	if n.presses != 1 || len(n.set) != 1 || n.set[0] != 12 {
		t.Fatalf("presses=%d set=%v", n.presses, n.set)
	}

	for _, bad := range []string{
		`not json`,
		`{"node_addr": 1, "event": "press"}`,
		`{"node_addr": 5388, "event": "reboot"}`,
	} {
		if err := HandleCommand(net, []byte(bad)); err == nil {
			t.Fatalf("%s accepted", bad)
		}
	}
}

func TestBridgePublishesStatus(t *testing.T) {
	net, _ := newFakeNet()
	pub := &fakePublisher{out: make(chan published, 4)}
	b := NewBridge(pub, net, "trickle")
	if b.CommandTopic() != "trickle/command" {
		t.Fatalf("command topic %q", b.CommandTopic())
	}

	events := make(chan eventBus.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, events) }()

	at := time.UnixMilli(1700000000000)
	events <- eventBus.Event{Type: eventBus.EventFrameSent, NodeAddr: 0x150c}
	events <- eventBus.Event{Type: eventBus.EventValueChanged, NodeAddr: 0x150c, Value: 3, Timestamp: at}

	select {
	case p := <-pub.out:
		if p.topic != "trickle/150c/status" {
			t.Fatalf("topic %q", p.topic)
		}
		st, err := DecodeStatus(p.payload)
		if err != nil {
			t.Fatalf("DecodeStatus: %v", err)
		}
		want := StatusPayload{Addr: 0x150c, Value: 3, IntervalMs: 2500, LED: true, Ts: at.UnixMilli()}
		if st != want {
			t.Fatalf("status %+v, want %+v", st, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("no status published")
	}

	close(events)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pub.out) != 0 {
		t.Fatalf("non value events were published")
	}
}
