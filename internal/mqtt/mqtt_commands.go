package mqtt

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"trickle-sim/internal/mesh"
)

// ProcessMqttCommand handles messages coming from the "<prefix>/command" topic.
func ProcessMqttCommand(net mesh.INetwork) func(mqtt.Client, mqtt.Message) {
	return func(client mqtt.Client, msg mqtt.Message) {
		if err := HandleCommand(net, msg.Payload()); err != nil {
			log.Printf("[mqtt] command on %s rejected: %v\n", msg.Topic(), err)
		}
	}
}

// HandleCommand applies one JSON command to the addressed node.
func HandleCommand(net mesh.INetwork, raw []byte) error {
	var payload MqttCommandPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("error parsing MQTT payload: %w", err)
	}
	nd, err := net.GetNode(payload.NodeAddr)
	if err != nil {
		return err
	}

	switch payload.Event {
	case "press":
		nd.PressButton()
		log.Printf("[mqtt] Node %04x: button pressed\n", payload.NodeAddr)
	case "set":
		nd.SetValue(payload.Value)
		log.Printf("[mqtt] Node %04x: value set to %d\n", payload.NodeAddr, payload.Value)
	default:
		return fmt.Errorf("unknown event type: %q", payload.Event)
	}
	return nil
}
