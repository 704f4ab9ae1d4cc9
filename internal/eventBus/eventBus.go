package eventBus

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventNodeJoined      EventType = "NODE_JOINED"
	EventNodeLeft        EventType = "NODE_LEFT"
	EventMovedNode       EventType = "MOVED_NODE"
	EventIntervalStarted EventType = "INTERVAL_STARTED"
	EventIntervalReset   EventType = "INTERVAL_RESET"
	EventFrameSent       EventType = "FRAME_SENT"
	EventFrameSuppressed EventType = "FRAME_SUPPRESSED"
	EventFrameDelivered  EventType = "FRAME_DELIVERED"
	EventFrameDropped    EventType = "FRAME_DROPPED"
	EventCollision       EventType = "COLLISION"
	EventLostFrame       EventType = "LOST_FRAME"
	EventTransmitFailed  EventType = "TRANSMIT_FAILED"
	EventEntropyFailed   EventType = "ENTROPY_FAILED"
	EventValueChanged    EventType = "VALUE_CHANGED"
	EventLocalTrigger    EventType = "LOCAL_TRIGGER"
)

const defaultBuffer = 100

// Event holds details that the front end and the metrics collector need.
type Event struct {
	ID        uuid.UUID     `json:"id"`
	Type      EventType     `json:"type"`
	NodeAddr  uint16        `json:"node_addr"`
	OtherAddr uint16        `json:"other_addr,omitempty"`
	Value     int32         `json:"value"`
	Interval  time.Duration `json:"interval,omitempty"`
	Window    time.Duration `json:"window,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Payload   string        `json:"payload,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	X         float64       `json:"x"`
	Y         float64       `json:"y"`
}

// EventBus manages a set of subscribers and publishes events to them.
type EventBus struct {
	subscribers []chan Event
	mu          sync.RWMutex
}

// NewEventBus creates a new EventBus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan Event, 0),
	}
}

// Publish sends an event to all subscribers.
func (eb *EventBus) Publish(e Event) {
	if eb == nil {
		return
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, sub := range eb.subscribers {
		// Use a non-blocking send in case a subscriber is busy.
		select {
		case sub <- e:
		default:
			log.Printf("Dropping %s event: subscriber channel is full", e.Type)
		}
	}
}

// Subscribe returns a new channel that will receive published events.
func (eb *EventBus) Subscribe() chan Event {
	return eb.SubscribeBuffered(defaultBuffer)
}

// SubscribeBuffered is Subscribe with a caller-chosen buffer, for consumers
// that must not lose events during bursts.
func (eb *EventBus) SubscribeBuffered(n int) chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	ch := make(chan Event, n)
	eb.subscribers = append(eb.subscribers, ch)
	return ch
}

// Unsubscribe removes ch and closes it.
func (eb *EventBus) Unsubscribe(ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}
