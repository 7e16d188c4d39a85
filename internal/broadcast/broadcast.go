package broadcast

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// eventsChannel is the Redis pub/sub channel every instance's hub listens on
const eventsChannel = "homepanel:events"

// Event is the wire form of one broadcast message
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Publisher pushes events into the Redis channel. Publish is fire-and-forget:
// a failed publish is logged and dropped, never surfaced to the caller.
type Publisher struct {
	redis *redis.Client
}

// NewPublisher creates a broadcast publisher
func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{redis: redisClient}
}

// Publish sends one event to all connected clients of all instances
func (p *Publisher) Publish(event string, payload any) {
	raw, err := json.Marshal(Event{Event: event, Payload: payload})
	if err != nil {
		log.Printf("BROADCAST: failed to marshal event %s: %v", event, err)
		return
	}
	if err := p.redis.Publish(context.Background(), eventsChannel, raw).Err(); err != nil {
		log.Printf("BROADCAST: failed to publish event %s: %v", event, err)
	}
}
