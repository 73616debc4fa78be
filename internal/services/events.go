package services

import (
	"context"
	"time"

	"auction-core/internal/domain"
	"auction-core/pkg/logger"
)

const eventTimeout = 5 * time.Second

// eventEmitter archives and publishes auction events off the request path.
// Either collaborator may be nil.
type eventEmitter struct {
	publisher domain.EventPublisher
	archive   domain.AuctionEventRepository
	log       logger.Logger
}

func (e eventEmitter) emit(event domain.AuctionEvent) {
	if e.publisher == nil && e.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()

		if e.archive != nil {
			if err := e.archive.SaveAuctionEvent(ctx, &event); err != nil {
				e.log.Error("Failed to archive auction event", "auction_id", event.AuctionID, "type", event.Type, "error", err)
			}
		}
		if e.publisher != nil {
			if err := e.publisher.PublishAuctionEvent(ctx, &event); err != nil {
				e.log.Error("Failed to publish auction event", "auction_id", event.AuctionID, "type", event.Type, "error", err)
			}
		}
	}()
}

func eventFor(eventType domain.AuctionEventType, auction domain.Auction, userID string, at time.Time) domain.AuctionEvent {
	return domain.AuctionEvent{
		Type:      eventType,
		AuctionID: auction.ID,
		UserID:    userID,
		Amount:    auction.HighestBid,
		Status:    auction.Status,
		Version:   auction.Version,
		Timestamp: at,
	}
}
