package network

import (
	"fmt"
	"log"
	"math/rand"
	"slices"
	"sync"
	"time"

	"trickle-sim/internal/clock"
	"trickle-sim/internal/eventBus"
	"trickle-sim/internal/mesh"
)

const (
	DefaultMaxRange = 1400.0               // Maximum range for direct comms
	DefaultAirTime  = 4 * time.Millisecond // 127 B frame at 250 kbit/s
)

type Config struct {
	MaxRange float64
	AirTime  time.Duration
	Loss     float64 // per-receiver drop probability
	Seed     int64
}

// Struct to hold the transmission details
type Transmission struct {
	Pkt       []byte
	PacketID  uint32
	Sender    mesh.INode
	StartTime time.Time
	EndTime   time.Time
	Collided  bool
}

// NetworkImpl is a shared broadcast medium. A frame is on air for AirTime;
// frames overlapping in time from senders that can interfere are both lost.
type NetworkImpl struct {
	mu    sync.RWMutex
	nodes map[uint16]mesh.INode

	transmissions map[uint64]*Transmission
	txSeq         uint64

	cfg   Config
	clock clock.Clock
	bus   *eventBus.EventBus

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewNetwork creates a new instance of the network.
func NewNetwork(cfg Config, clk clock.Clock, bus *eventBus.EventBus) *NetworkImpl {
	if cfg.MaxRange <= 0 {
		cfg.MaxRange = DefaultMaxRange
	}
	if cfg.AirTime <= 0 {
		cfg.AirTime = DefaultAirTime
	}
	return &NetworkImpl{
		nodes:         make(map[uint16]mesh.INode),
		transmissions: make(map[uint64]*Transmission),
		cfg:           cfg,
		clock:         clk,
		bus:           bus,
		rng:           rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Join adds a node to the medium. The node must already be started so that
// no frame reaches an uninitialised engine.
func (net *NetworkImpl) Join(n mesh.INode) {
	net.mu.Lock()
	net.nodes[n.GetAddr()] = n
	net.mu.Unlock()

	log.Printf("[sim] Node %04x: joining network.\n", n.GetAddr())
	pos := n.GetPosition()
	net.bus.Publish(eventBus.Event{
		Type:      eventBus.EventNodeJoined,
		NodeAddr:  n.GetAddr(),
		Payload:   fmt.Sprintf("Node %04x joined the network", n.GetAddr()),
		Timestamp: net.clock.Now(),
		X:         pos.X,
		Y:         pos.Y,
	})
}

// Leave stops a node and removes it from the medium.
func (net *NetworkImpl) Leave(addr uint16) {
	net.mu.Lock()
	nd, ok := net.nodes[addr]
	delete(net.nodes, addr)
	net.mu.Unlock()
	if !ok {
		return
	}

	log.Printf("[sim] Node %04x: leaving network.\n", addr)
	nd.Stop()
	nd.PrintNodeDetails()
	net.bus.Publish(eventBus.Event{
		Type:      eventBus.EventNodeLeft,
		NodeAddr:  addr,
		Payload:   fmt.Sprintf("Node %04x removed from the network", addr),
		Timestamp: net.clock.Now(),
	})
}

// LeaveAll removes every node.
func (net *NetworkImpl) LeaveAll() {
	for _, n := range net.Nodes() {
		net.Leave(n.GetAddr())
	}
}

// For collisions, we treat partial overlap as collision.
func timesOverlap(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// If distance > 2*maxRange, no collision possible
func (net *NetworkImpl) sendersCanCollide(senderA, senderB mesh.INode) bool {
	dist := senderA.GetPosition().DistanceTo(senderB.GetPosition())
	return dist <= (net.cfg.MaxRange * 2.0)
}

// BroadcastMessage puts a frame on air. After AirTime it is delivered to
// every node in range unless it collided.
func (net *NetworkImpl) BroadcastMessage(sendPacket []byte, sender mesh.INode, packetID uint32) {
	start := net.clock.Now()
	tx := &Transmission{
		Pkt:       append([]byte(nil), sendPacket...),
		PacketID:  packetID,
		Sender:    sender,
		StartTime: start,
		EndTime:   start.Add(net.cfg.AirTime),
	}

	net.mu.Lock()
	net.txSeq++
	seq := net.txSeq
	for _, ongoing := range net.transmissions {
		if timesOverlap(tx.StartTime, tx.EndTime, ongoing.StartTime, ongoing.EndTime) && net.sendersCanCollide(sender, ongoing.Sender) {
			ongoing.Collided = true
			tx.Collided = true
			log.Printf("[Network] Collision detected between %04x and %04x\n", sender.GetAddr(), ongoing.Sender.GetAddr())
			net.bus.Publish(eventBus.Event{
				Type:      eventBus.EventCollision,
				NodeAddr:  sender.GetAddr(),
				OtherAddr: ongoing.Sender.GetAddr(),
				Timestamp: start,
			})
		}
	}
	net.transmissions[seq] = tx
	net.mu.Unlock()

	net.clock.AfterFunc(net.cfg.AirTime, func() { net.endTransmission(seq) })
}

func (net *NetworkImpl) endTransmission(seq uint64) {
	net.mu.Lock()
	tx, ok := net.transmissions[seq]
	delete(net.transmissions, seq)
	if !ok {
		net.mu.Unlock()
		return
	}
	if tx.Collided {
		net.mu.Unlock()
		log.Printf("[Collision Drop] Frame %08x from node %04x dropped.\n", tx.PacketID, tx.Sender.GetAddr())
		return
	}
	receivers := make([]mesh.INode, 0, len(net.nodes))
	for _, id := range net.sortedAddrs() {
		nd := net.nodes[id]
		if id == tx.Sender.GetAddr() || !net.IsInRange(tx.Sender, nd) {
			continue
		}
		receivers = append(receivers, nd)
	}
	net.mu.Unlock()

	for _, nd := range receivers {
		if net.lost() {
			net.bus.Publish(eventBus.Event{
				Type:      eventBus.EventLostFrame,
				NodeAddr:  nd.GetAddr(),
				OtherAddr: tx.Sender.GetAddr(),
				Timestamp: net.clock.Now(),
			})
			continue
		}
		nd.Deliver(tx.Pkt)
	}
}

func (net *NetworkImpl) lost() bool {
	if net.cfg.Loss <= 0 {
		return false
	}
	net.rngMu.Lock()
	defer net.rngMu.Unlock()
	return net.rng.Float64() < net.cfg.Loss
}

// IsChannelFree reports whether no other transmission the sender can hear
// is currently on air.
func (net *NetworkImpl) IsChannelFree(sender mesh.INode) bool {
	net.mu.RLock()
	defer net.mu.RUnlock()
	for _, tx := range net.transmissions {
		if tx.Sender == sender || net.IsInRange(sender, tx.Sender) {
			return false
		}
	}
	return true
}

// ActiveTransmissions returns the number of frames on air.
func (net *NetworkImpl) ActiveTransmissions() int {
	net.mu.RLock()
	defer net.mu.RUnlock()
	return len(net.transmissions)
}

func (net *NetworkImpl) GetNode(addr uint16) (mesh.INode, error) {
	net.mu.RLock()
	defer net.mu.RUnlock()
	if nd, ok := net.nodes[addr]; ok {
		return nd, nil
	}
	return nil, fmt.Errorf("node %04x not found", addr)
}

// Nodes returns the joined nodes ordered by address.
func (net *NetworkImpl) Nodes() []mesh.INode {
	net.mu.RLock()
	defer net.mu.RUnlock()
	out := make([]mesh.INode, 0, len(net.nodes))
	for _, id := range net.sortedAddrs() {
		out = append(out, net.nodes[id])
	}
	return out
}

// caller holds net.mu
func (net *NetworkImpl) sortedAddrs() []uint16 {
	ids := make([]uint16, 0, len(net.nodes))
	for id := range net.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Check if a node is in range to recieve signal from another node
func (net *NetworkImpl) IsInRange(node1 mesh.INode, node2 mesh.INode) bool {
	return node1.GetPosition().DistanceTo(node2.GetPosition()) <= net.cfg.MaxRange
}
