package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"trickle-sim/internal/clock"
	"trickle-sim/internal/eventBus"
	"trickle-sim/internal/mesh"
)

// NodePayload addresses a node by its short address.
type NodePayload struct {
	NodeAddr uint16 `json:"node_addr"`
}

type SetValuePayload struct {
	NodeAddr uint16 `json:"node_addr"`
	Value    int32  `json:"value"`
}

type MoveNodePayload struct {
	NodeAddr uint16  `json:"node_addr"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func lookup(w http.ResponseWriter, net mesh.INetwork, addr uint16) (mesh.INode, bool) {
	nd, err := net.GetNode(addr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return nd, true
}

// NodesHandler lists every joined node with its Trickle state.
func NodesHandler(net mesh.INetwork) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodes := net.Nodes()
		out := make([]mesh.NodeStatus, 0, len(nodes))
		for _, nd := range nodes {
			out = append(out, nd.Status())
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

// PressHandler presses the button of a node.
func PressHandler(net mesh.INetwork) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload NodePayload
		if !decode(w, r, &payload) {
			return
		}
		nd, ok := lookup(w, net, payload.NodeAddr)
		if !ok {
			return
		}
		nd.PressButton()
		w.Write([]byte("Button pressed"))
	}
}

// SetValueHandler injects a value on a node.
func SetValueHandler(net mesh.INetwork) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload SetValuePayload
		if !decode(w, r, &payload) {
			return
		}
		nd, ok := lookup(w, net, payload.NodeAddr)
		if !ok {
			return
		}
		nd.SetValue(payload.Value)
		w.Write([]byte("Value set"))
	}
}

// RemoveNodeHandler removes a node from the network.
func RemoveNodeHandler(net mesh.INetwork) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload NodePayload
		if !decode(w, r, &payload) {
			return
		}
		if _, ok := lookup(w, net, payload.NodeAddr); !ok {
			return
		}
		net.Leave(payload.NodeAddr)
		w.Write([]byte("Node removed from the network"))
	}
}

// Move a node. The event is stamped with the simulation clock.
func MoveNodeHandler(net mesh.INetwork, bus *eventBus.EventBus, clk clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload MoveNodePayload
		if !decode(w, r, &payload) {
			return
		}
		nd, ok := lookup(w, net, payload.NodeAddr)
		if !ok {
			return
		}

		position := mesh.CreateCoordinates(payload.X, payload.Y)
		nd.SetPosition(position)

		bus.Publish(eventBus.Event{
			Type:      eventBus.EventMovedNode,
			NodeAddr:  payload.NodeAddr,
			Payload:   fmt.Sprintf("Moved Node %04x", payload.NodeAddr),
			Timestamp: clk.Now(),
			X:         position.X,
			Y:         position.Y,
		})
		w.Write([]byte("Node moved"))
	}
}
