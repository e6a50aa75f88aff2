package feed

import (
	"context"
	"encoding/json"

	"github.com/mlee/checkline-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Bridge fans events out across server instances through a Redis pub/sub
// channel. Each instance publishes committed events to the channel and
// replays received events into its local hub, so a device subscribed to one
// instance still sees writes committed through another.
type Bridge struct {
	hub     *Hub
	client  *redis.Client
	channel string
}

func NewBridge(hub *Hub, client *redis.Client, channel string) *Bridge {
	return &Bridge{
		hub:     hub,
		client:  client,
		channel: channel,
	}
}

// Publish sends the event to the channel; the local hub receives it through
// the same subscription as every other instance. Implements Publisher.
func (b *Bridge) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal event for bridge", err, map[string]interface{}{
			"entity":    event.Entity,
			"entity_id": event.EntityID,
		})
		return
	}

	if err := b.client.Publish(context.Background(), b.channel, data).Err(); err != nil {
		// Redis being down must not break writes; deliver locally so
		// subscribers on this instance still converge.
		logger.Error("Failed to publish event to bridge, delivering locally", err, map[string]interface{}{
			"entity":    event.Entity,
			"entity_id": event.EntityID,
		})
		b.hub.Publish(event)
	}
}

// Run subscribes to the channel and replays events into the local hub until
// ctx is canceled.
func (b *Bridge) Run(ctx context.Context) {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	logger.Info("Feed bridge subscribed", map[string]interface{}{
		"channel": b.channel,
	})

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn("Dropping malformed bridge event", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			b.hub.Publish(event)
		}
	}
}
