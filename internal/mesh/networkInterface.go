package mesh

type INetwork interface {
	Join(n INode)
	Leave(addr uint16)
	LeaveAll()
	BroadcastMessage(sendPacket []byte, sender INode, packetID uint32)
	IsChannelFree(sender INode) bool
	GetNode(addr uint16) (INode, error)
	Nodes() []INode
}
