package services

import (
	"context"
	"fmt"

	"auction-core/internal/domain"
	"auction-core/pkg/logger"
)

// EventListener fans auction events out to the websockets watching each
// auction on this instance.
type EventListener struct {
	broadcaster       domain.AuctionBroadcaster
	connectionManager domain.ConnectionManager
	log               logger.Logger
}

func NewEventListener(connectionManager domain.ConnectionManager, broadcaster domain.AuctionBroadcaster, log logger.Logger) *EventListener {
	return &EventListener{
		broadcaster:       broadcaster,
		connectionManager: connectionManager,
		log:               log,
	}
}

func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeToAuctionEvents(ctx, el.HandleAuctionEvent)
}

func (el *EventListener) HandleAuctionEvent(event *domain.AuctionEvent) error {
	el.log.Debug("Handling auction event", "type", event.Type, "auction_id", event.AuctionID)

	switch event.Type {
	case domain.BidAccepted:
		return el.broadcaster.BroadcastToAuction(context.Background(), event.AuctionID, map[string]interface{}{
			"type":           "bid_update",
			"current_bid":    event.Amount,
			"current_winner": event.UserID,
			"version":        event.Version,
			"timestamp":      event.Timestamp,
		})
	case domain.AuctionUpdated:
		return el.broadcaster.BroadcastToAuction(context.Background(), event.AuctionID, map[string]interface{}{
			"type":      "auction_updated",
			"version":   event.Version,
			"timestamp": event.Timestamp,
		})
	case domain.AuctionClosed, domain.AuctionBannedEvent:
		return el.handleAuctionEnded(event)
	}

	return fmt.Errorf("unknown event type %q for auction %s", event.Type, event.AuctionID)
}

func (el *EventListener) handleAuctionEnded(event *domain.AuctionEvent) error {
	if err := el.broadcaster.BroadcastToAuction(context.Background(), event.AuctionID, map[string]interface{}{
		"type":           "auction_ended",
		"status":         event.Status,
		"final_bid":      event.Amount,
		"current_winner": event.UserID,
		"version":        event.Version,
		"timestamp":      event.Timestamp,
	}); err != nil {
		el.log.Error("Failed to broadcast auction ended event", "auction_id", event.AuctionID, "error", err)
	}

	if err := el.connectionManager.CloseAndUnregisterConnections(event.AuctionID); err != nil {
		el.log.Error("Failed to finalize connections for auction", "auction_id", event.AuctionID, "error", err)
		return err
	}
	return nil
}
