package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"auction-core/internal/domain"
	"auction-core/pkg/logger"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

type recordingConnections struct {
	domain.ConnectionManager
	mu        sync.Mutex
	broadcast []map[string]interface{}
	closed    []string
}

type recordingBroadcaster struct {
	conns *recordingConnections
}

func (b recordingBroadcaster) BroadcastToAuction(ctx context.Context, auctionID string, message interface{}) error {
	b.conns.mu.Lock()
	defer b.conns.mu.Unlock()
	b.conns.broadcast = append(b.conns.broadcast, message.(map[string]interface{}))
	return nil
}

func (c *recordingConnections) CloseAndUnregisterConnections(auctionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, auctionID)
	return nil
}

func TestEventListenerBroadcastsBids(t *testing.T) {
	conns := &recordingConnections{}
	el := NewEventListener(conns, recordingBroadcaster{conns}, logger.NewNop())

	err := el.HandleAuctionEvent(&domain.AuctionEvent{
		Type: domain.BidAccepted, AuctionID: "a1", UserID: "alice", Amount: 1100, Version: 1, Timestamp: base,
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(conns.broadcast))
	check.Equal(t, "bid_update", conns.broadcast[0]["type"].(string))
	check.Equal(t, "alice", conns.broadcast[0]["current_winner"].(string))
	check.Equal(t, 0, len(conns.closed))
}

func TestEventListenerClosesEndedAuctions(t *testing.T) {
	conns := &recordingConnections{}
	el := NewEventListener(conns, recordingBroadcaster{conns}, logger.NewNop())

	assert.NoError(t, el.HandleAuctionEvent(&domain.AuctionEvent{Type: domain.AuctionClosed, AuctionID: "a1", Status: domain.AuctionAdjudicated}))
	assert.NoError(t, el.HandleAuctionEvent(&domain.AuctionEvent{Type: domain.AuctionBannedEvent, AuctionID: "a2", Status: domain.AuctionBanned}))

	check.Equal(t, []string{"a1", "a2"}, conns.closed)
	check.Equal(t, "auction_ended", conns.broadcast[1]["type"].(string))

	check.Error(t, el.HandleAuctionEvent(&domain.AuctionEvent{Type: "auction_extended", AuctionID: "a1"}))
}

type fakeSubscriber struct {
	events []*domain.AuctionEvent
}

func (s *fakeSubscriber) SubscribeToAuctionEvents(ctx context.Context, handler domain.EventHandler) error {
	for _, e := range s.events {
		_ = handler(e)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestEventListenerStart(t *testing.T) {
	conns := &recordingConnections{}
	el := NewEventListener(conns, recordingBroadcaster{conns}, logger.NewNop())
	sub := &fakeSubscriber{events: []*domain.AuctionEvent{{Type: domain.AuctionUpdated, AuctionID: "a1", Version: 2}}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	check.Error(t, el.Start(ctx, sub))

	assert.Equal(t, 1, len(conns.broadcast))
	check.Equal(t, "auction_updated", conns.broadcast[0]["type"].(string))
}
