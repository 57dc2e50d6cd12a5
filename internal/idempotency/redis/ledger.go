package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventLedger remembers processed webhook event ids in Redis.
type EventLedger struct {
	client redis.UniversalClient
	prefix string
}

func NewEventLedger(client redis.UniversalClient) *EventLedger {
	return &EventLedger{client: client, prefix: "webhook:event:"}
}

func (l *EventLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.prefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (l *EventLedger) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	if err := l.client.Set(ctx, l.prefix+eventID, time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
