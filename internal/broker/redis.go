package broker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBroker fans events out through Redis pub/sub so every instance sees them.
type RedisBroker struct {
	client *redis.Client
	mu     sync.Mutex
	subs   map[<-chan Event]*redisSubscription
}

type redisSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{
		client: client,
		subs:   make(map[<-chan Event]*redisSubscription),
	}
}

func (b *RedisBroker) Subscribe(topic string) <-chan Event {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, topic)
	out := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[out] = &redisSubscription{pubsub: pubsub, cancel: cancel}
	b.mu.Unlock()

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					log.Warn().Err(err).Str("topic", topic).Msg("Discarding malformed broker payload")
					continue
				}
				select {
				case out <- evt:
				default:
					log.Warn().Str("topic", topic).Str("type", evt.Type).Msg("Dropping event for slow subscriber")
				}
			}
		}
	}()

	return out
}

func (b *RedisBroker) Unsubscribe(topic string, ch <-chan Event) {
	b.mu.Lock()
	sub, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if !ok {
		return
	}
	sub.cancel()
	if err := sub.pubsub.Close(); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to close redis subscription")
	}
}

func (b *RedisBroker) Publish(topic string, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to encode event")
		return
	}
	if err := b.client.Publish(context.Background(), topic, payload).Err(); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to publish event")
	}
}
