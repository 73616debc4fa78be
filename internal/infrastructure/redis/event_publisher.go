package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-core/internal/domain"

	"github.com/go-redis/redis/v8"
)

const auctionEventsChannel = "auction_events"

type RedisEventPublisher struct {
	client *redis.Client
}

func NewRedisEventPublisher(client *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{client: client}
}

func (r *RedisEventPublisher) PublishAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal auction event: %w", err)
	}

	return r.client.Publish(ctx, auctionEventsChannel, payload).Err()
}
