package mesh

import "time"

// NodeStatus is a point-in-time view of a node for the HTTP and MQTT surfaces.
type NodeStatus struct {
	Addr     uint16        `json:"addr"`
	Value    int32         `json:"value"`
	Interval time.Duration `json:"interval"`
	Window   time.Duration `json:"window"`
	Heard    uint          `json:"heard"`
	Epoch    uint64        `json:"epoch"`
	LED      bool          `json:"led"`
	GPIO     bool          `json:"gpio"`
	X        float64       `json:"x"`
	Y        float64       `json:"y"`
}

type INode interface {
	GetAddr() uint16
	Start() error
	Run()
	Stop()
	Deliver(receivedPacket []byte)
	PressButton()
	SetValue(v int32)
	Status() NodeStatus
	PrintNodeDetails()

	GetPosition() Coordinates
	SetPosition(coord Coordinates)
}
