package domain

import (
	"context"
	"time"
)

// AuctionStore is durable keyed storage for auctions. CompareAndSwap is the
// only mutation path for existing records.
type AuctionStore interface {
	Create(ctx context.Context, auction Auction) error
	Get(ctx context.Context, auctionID string) (Auction, bool, error)
	// CompareAndSwap persists mutated with Version expectedVersion+1 when the
	// stored version equals expectedVersion. Otherwise it returns false and the
	// stored record unchanged.
	CompareAndSwap(ctx context.Context, auctionID string, expectedVersion int64, mutated Auction) (bool, Auction, error)
	ListActive(ctx context.Context) ([]Auction, error)
	// ListActiveDue returns active auctions whose deadline is strictly before the given instant.
	ListActiveDue(ctx context.Context, before time.Time) ([]Auction, error)
}

// AuctionEventRepository archives auction events for audit and history.
type AuctionEventRepository interface {
	SaveAuctionEvent(ctx context.Context, event *AuctionEvent) error
	GetAuctionHistory(ctx context.Context, auctionID string) ([]*AuctionEvent, error)
}

// Notification interfaces
type Notifier interface {
	Notify(ctx context.Context, userID, subject, body string)
}

type NotificationSink interface {
	Deliver(ctx context.Context, n Notification) error
}

type AuctionBroadcaster interface {
	BroadcastToAuction(ctx context.Context, auctionID string, message interface{}) error
}

// Event interfaces
type EventPublisher interface {
	PublishAuctionEvent(ctx context.Context, event *AuctionEvent) error
}

type EventSubscriber interface {
	SubscribeToAuctionEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *AuctionEvent) error

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	AuctionID() string
}

type ConnectionManager interface {
	RegisterConnection(userID, auctionID string, conn WebSocketConnection) error
	UnregisterConnection(conn WebSocketConnection) error
	GetConnectionsForAuction(auctionID string) []WebSocketConnection
	GetConnectionsForUser(userID string) []WebSocketConnection
	BroadcastToAuction(auctionID string, message interface{}) error
	NotifyUser(userID string, message interface{}) error
	CloseAndUnregisterConnections(auctionID string) error
}
