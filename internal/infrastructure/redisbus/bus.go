// Package redisbus relays realtime notification events between service
// instances over Redis pub/sub, one channel per recipient.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/brainwaves/notification/internal/domain"
)

// Local delivers an event to the clients connected to this process.
type Local interface {
	Publish(ctx context.Context, userID string, ev domain.Event)
}

// Bus publishes events to Redis and relays every received event to Local.
// It implements application.Publisher.
type Bus struct {
	client redis.UniversalClient
	local  Local
}

// New creates a Bus over client.
func New(client redis.UniversalClient, local Local) *Bus {
	return &Bus{client: client, local: local}
}

// Publish sends ev on the recipient's channel. If Redis is unreachable the
// event is delivered locally only, so single-node clients still receive it.
func (b *Bus) Publish(ctx context.Context, userID string, ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("user", userID).Msg("realtime event encode failed")
		return
	}
	if err := b.client.Publish(ctx, domain.Channel(userID), payload).Err(); err != nil {
		log.Warn().Err(err).Str("user", userID).Str("kind", string(ev.Kind)).Msg("redis publish failed, delivering locally")
		b.local.Publish(ctx, userID, ev)
	}
}

// Start subscribes to every recipient channel and relays messages to Local
// until ctx is cancelled. It returns once the subscription is confirmed.
func (b *Bus) Start(ctx context.Context) error {
	ps := b.client.PSubscribe(ctx, domain.ChannelPrefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe realtime channels: %w", err)
	}

	go func() {
		defer ps.Close()
		ch := ps.Channel()
		log.Info().Str("pattern", domain.ChannelPrefix+"*").Msg("realtime relay started")
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.relay(ctx, msg)
			case <-ctx.Done():
				log.Info().Msg("realtime relay stopped")
				return
			}
		}
	}()
	return nil
}

func (b *Bus) relay(ctx context.Context, msg *redis.Message) {
	userID := strings.TrimPrefix(msg.Channel, domain.ChannelPrefix)
	var ev domain.Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		log.Warn().Err(err).Str("channel", msg.Channel).Msg("undecodable realtime event dropped")
		return
	}
	b.local.Publish(ctx, userID, ev)
}
