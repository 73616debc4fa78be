package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-core/internal/domain"
	"auction-core/pkg/logger"

	"github.com/go-redis/redis/v8"
)

type RedisEventSubscriber struct {
	client *redis.Client
	log    logger.Logger
}

func NewRedisEventSubscriber(client *redis.Client, log logger.Logger) *RedisEventSubscriber {
	return &RedisEventSubscriber{
		client: client,
		log:    log,
	}
}

// SubscribeToAuctionEvents blocks, handing every event to handler until ctx is done.
func (r *RedisEventSubscriber) SubscribeToAuctionEvents(ctx context.Context, handler domain.EventHandler) error {
	pubsub := r.client.Subscribe(ctx, auctionEventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()

	r.log.Info("Subscribed to auction events", "channel", auctionEventsChannel)

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("auction events channel closed")
			}
			event, err := parseEvent(msg.Payload)
			if err != nil {
				r.log.Error("Failed to parse event", "payload", msg.Payload, "error", err)
				continue
			}

			if err := handler(event); err != nil {
				r.log.Error("Failed to handle event", "type", event.Type, "auction_id", event.AuctionID, "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}

func parseEvent(payload string) (*domain.AuctionEvent, error) {
	var event domain.AuctionEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}
	if event.AuctionID == "" || event.Type == "" {
		return nil, fmt.Errorf("invalid event payload: missing auction id or type")
	}
	return &event, nil
}
