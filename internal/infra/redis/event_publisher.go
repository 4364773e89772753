package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"quiz-battle-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// EventPublisher emits match lifecycle events on a Redis pub/sub channel for
// external collaborators (XP award, notifications). Implements app.EventSink.
type EventPublisher struct {
	client  *redis.Client
	channel string
}

func NewEventPublisher(client *redis.Client, channel string) *EventPublisher {
	if channel == "" {
		channel = "battle:events"
	}
	return &EventPublisher{client: client, channel: channel}
}

func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
