// broker/broker.go
package broker

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Event is the unit delivered to websocket subscribers.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(eventType string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: raw}, nil
}

func RoomTopic(roomID string) string { return "room_" + roomID }

func CreditTopic(userID string) string { return "credit_update_" + userID }

// MessageBroker is implemented by the in-process Broker and by RedisBroker.
type MessageBroker interface {
	Subscribe(topic string) <-chan Event
	Unsubscribe(topic string, ch <-chan Event)
	Publish(topic string, evt Event)
}

const subscriberBuffer = 16

type Broker struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string][]chan Event),
	}
}

func (b *Broker) Subscribe(topic string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	return ch
}

func (b *Broker) Unsubscribe(topic string, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if chans, ok := b.subscribers[topic]; ok {
		for i, c := range chans {
			if c == ch {
				b.subscribers[topic] = append(chans[:i], chans[i+1:]...)
				close(c)
				break
			}
		}
		if len(b.subscribers[topic]) == 0 {
			delete(b.subscribers, topic)
		}
	}
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (b *Broker) Publish(topic string, evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- evt:
		default:
			log.Warn().Str("topic", topic).Str("type", evt.Type).Msg("Dropping event for slow subscriber")
		}
	}
}
