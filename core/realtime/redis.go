package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lukewaehner/KijayKolder-LinksHub/logger"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces the pub/sub channels, one per topic.
const DefaultChannelPrefix = "linkshub:changes:"

// RedisBroker publishes events on Redis pub/sub so every server instance's hub
// sees mutations made by any instance.
type RedisBroker struct {
	client *redis.Client
	prefix string
}

func NewRedisBroker(client *redis.Client, prefix string) *RedisBroker {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisBroker{client: client, prefix: prefix}
}

// Channel returns the pub/sub channel carrying topic.
func (b *RedisBroker) Channel(topic string) string {
	return b.prefix + topic
}

// Topic is the inverse of Channel.
func (b *RedisBroker) Topic(channel string) (string, bool) {
	if !strings.HasPrefix(channel, b.prefix) {
		return "", false
	}
	return strings.TrimPrefix(channel, b.prefix), true
}

func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.Channel(ev.Table), data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Table, err)
	}
	return nil
}

// Relay forwards every message on the broker's channels into hub until ctx ends.
func (b *RedisBroker) Relay(ctx context.Context, hub *Hub) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	logger.Info("relaying redis change feed", logger.String("pattern", b.prefix+"*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			topic, ok := b.Topic(msg.Channel)
			if !ok {
				continue
			}
			hub.Broadcast(topic, []byte(msg.Payload))
		}
	}
}
