package mqtt

import (
	"context"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"trickle-sim/internal/eventBus"
	"trickle-sim/internal/mesh"
)

// Publisher is the slice of the MQTT client the status bridge needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
}

// MQTTManager manages the MQTT connection and message routing.
type MQTTManager struct {
	client mqtt.Client
}

// New creates and connects a new MQTTManager.
func New(broker, clientID string) (*MQTTManager, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		log.Printf("[mqtt] unexpected message on topic %s\n", msg.Topic())
	})

	manager := &MQTTManager{client: mqtt.NewClient(opts)}
	if token := manager.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return manager, nil
}

// Subscribe subscribes to a specific topic with the desired QoS.
func (m *MQTTManager) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	token := m.client.Subscribe(topic, qos, callback)
	token.Wait()
	return token.Error()
}

// Publish publishes a message to the given topic.
func (m *MQTTManager) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	token := m.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

// Disconnect performs a clean disconnect from the MQTT broker.
func (m *MQTTManager) Disconnect() {
	m.client.Disconnect(250)
}

// Bridge connects the simulation to a broker: operator commands in, node
// status out on every value change.
type Bridge struct {
	pub    Publisher
	net    mesh.INetwork
	prefix string
}

func NewBridge(pub Publisher, net mesh.INetwork, prefix string) *Bridge {
	return &Bridge{pub: pub, net: net, prefix: prefix}
}

func (b *Bridge) CommandTopic() string {
	return b.prefix + "/command"
}

func (b *Bridge) StatusTopic(addr uint16) string {
	return fmt.Sprintf("%s/%04x/status", b.prefix, addr)
}

// Run publishes status until ctx is done or the channel is closed.
func (b *Bridge) Run(ctx context.Context, events <-chan eventBus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type != eventBus.EventValueChanged {
				continue
			}
			if err := b.publishStatus(ev); err != nil {
				log.Printf("[mqtt] Node %04x: status not published: %v\n", ev.NodeAddr, err)
			}
		}
	}
}

func (b *Bridge) publishStatus(ev eventBus.Event) error {
	st := mesh.NodeStatus{Addr: ev.NodeAddr, Value: ev.Value, LED: ev.Value%2 != 0}
	if nd, err := b.net.GetNode(ev.NodeAddr); err == nil {
		st = nd.Status()
		st.Value, st.LED = ev.Value, ev.Value%2 != 0
	}
	buf, err := NewStatusPayload(st, ev.Timestamp).Encode()
	if err != nil {
		return err
	}
	return b.pub.Publish(b.StatusTopic(ev.NodeAddr), 0, false, buf)
}
