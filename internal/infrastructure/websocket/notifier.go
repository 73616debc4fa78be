package websocket

import (
	"context"

	"auction-core/internal/domain"
)

// WebSocketNotifier pushes notifications and auction broadcasts to open sockets.
type WebSocketNotifier struct {
	connManager domain.ConnectionManager
}

func NewWebSocketNotifier(connManager domain.ConnectionManager) *WebSocketNotifier {
	return &WebSocketNotifier{connManager: connManager}
}

func (n *WebSocketNotifier) Deliver(ctx context.Context, notification domain.Notification) error {
	return n.connManager.NotifyUser(notification.UserID, map[string]interface{}{
		"type":       "notification",
		"id":         notification.ID,
		"subject":    notification.Subject,
		"body":       notification.Body,
		"created_at": notification.CreatedAt,
	})
}

func (n *WebSocketNotifier) BroadcastToAuction(ctx context.Context, auctionID string, message interface{}) error {
	return n.connManager.BroadcastToAuction(auctionID, message)
}
