package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"harga-pangan/cache"
)

// relayMessage is what API instances exchange over Redis pub/sub
type relayMessage struct {
	Origin  string          `json:"origin"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Relay forwards events between API instances so every instance's live
// clients see changes committed by any of them.
type Relay struct {
	redis   *cache.RedisClient
	channel string
	origin  string
	local   *Broker
}

// NewRelay creates a relay bound to the local broker
func NewRelay(redis *cache.RedisClient, channel string, local *Broker) *Relay {
	return &Relay{
		redis:   redis,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
	}
}

// Publish sends the event to the other instances. Local clients are served by the broker directly.
func (r *Relay) Publish(ctx context.Context, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshalling relay payload: %v", err)
		return
	}
	if err := r.redis.Publish(ctx, r.channel, relayMessage{Origin: r.origin, Event: event, Payload: raw}); err != nil {
		log.Printf("⚠️  Relay publish failed: %v", err)
	}
}

// Run rebroadcasts events from other instances until ctx is cancelled
func (r *Relay) Run(ctx context.Context) {
	sub := r.redis.Subscribe(ctx, r.channel)
	if sub == nil {
		log.Println("ℹ️  Realtime relay disabled (no Redis)")
		return
	}
	defer sub.Close()

	log.Printf("✅ Realtime relay subscribed to %s", r.channel)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(msg.Payload)
		}
	}
}

// handle rebroadcasts one relayed message unless it originated here
func (r *Relay) handle(raw string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		log.Printf("⚠️  Invalid relay message: %v", err)
		return
	}
	if msg.Origin == r.origin || msg.Event == "" {
		return
	}
	r.local.publishRaw(msg.Event, msg.Payload)
}
