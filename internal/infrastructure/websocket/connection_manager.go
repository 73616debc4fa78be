package websocket

import (
	"encoding/json"
	"sync"

	"auction-core/internal/domain"
	"auction-core/pkg/logger"
)

type ConnectionManager struct {
	connections map[string]map[string]domain.WebSocketConnection // auctionID -> userID -> connection
	userConns   map[string][]domain.WebSocketConnection          // userID -> connections
	mutex       sync.RWMutex
	log         logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]map[string]domain.WebSocketConnection),
		userConns:   make(map[string][]domain.WebSocketConnection),
		log:         log,
	}
}

func (cm *ConnectionManager) RegisterConnection(userID, auctionID string, conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.connections[auctionID] == nil {
		cm.connections[auctionID] = make(map[string]domain.WebSocketConnection)
	}
	if previous, exists := cm.connections[auctionID][userID]; exists {
		// A reconnect replaces the older socket for the same auction.
		cm.removeUserConn(userID, previous)
		_ = previous.Close()
	}
	cm.connections[auctionID][userID] = conn
	cm.userConns[userID] = append(cm.userConns[userID], conn)

	cm.log.Debug("Connection registered", "user_id", userID, "auction_id", auctionID)
	return nil
}

// UnregisterConnection forgets conn. A newer socket registered for the same
// user and auction is left in place.
func (cm *ConnectionManager) UnregisterConnection(conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	userID, auctionID := conn.UserID(), conn.AuctionID()
	cm.removeUserConn(userID, conn)
	if auctionConns, exists := cm.connections[auctionID]; exists {
		if current, ok := auctionConns[userID]; ok && current == conn {
			delete(auctionConns, userID)
		}
		if len(auctionConns) == 0 {
			delete(cm.connections, auctionID)
		}
	}

	cm.log.Debug("Connection unregistered", "user_id", userID, "auction_id", auctionID)
	return nil
}

// CloseAndUnregisterConnections closes every socket watching a closed auction.
func (cm *ConnectionManager) CloseAndUnregisterConnections(auctionID string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	auctionConns, exists := cm.connections[auctionID]
	if !exists {
		return nil
	}
	for userID, conn := range auctionConns {
		if err := conn.Close(); err != nil {
			cm.log.Warn("Failed to close connection", "user_id", userID, "auction_id", auctionID, "error", err)
		}
		cm.removeUserConn(userID, conn)
	}
	delete(cm.connections, auctionID)

	cm.log.Info("Connections closed for auction", "auction_id", auctionID, "count", len(auctionConns))
	return nil
}

// removeUserConn must be called with the write lock held.
func (cm *ConnectionManager) removeUserConn(userID string, target domain.WebSocketConnection) {
	conns := cm.userConns[userID]
	kept := conns[:0]
	for _, c := range conns {
		if c != target {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(cm.userConns, userID)
		return
	}
	cm.userConns[userID] = kept
}

func (cm *ConnectionManager) GetConnectionsForAuction(auctionID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var connections []domain.WebSocketConnection
	for _, conn := range cm.connections[auctionID] {
		connections = append(connections, conn)
	}
	return connections
}

func (cm *ConnectionManager) GetConnectionsForUser(userID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	return append([]domain.WebSocketConnection(nil), cm.userConns[userID]...)
}

func (cm *ConnectionManager) BroadcastToAuction(auctionID string, message interface{}) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	connections := cm.GetConnectionsForAuction(auctionID)
	for _, conn := range connections {
		if err := conn.Send(messageBytes); err != nil {
			cm.log.Warn("Failed to send message", "user_id", conn.UserID(), "auction_id", auctionID, "error", err)
		}
	}

	cm.log.Debug("Broadcast to auction", "auction_id", auctionID, "connections", len(connections))
	return nil
}

// NotifyUser sends to every socket the user has open. Having none is not an error.
func (cm *ConnectionManager) NotifyUser(userID string, message interface{}) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var lastErr error
	for _, conn := range cm.GetConnectionsForUser(userID) {
		if err := conn.Send(messageBytes); err != nil {
			cm.log.Warn("Failed to send message", "user_id", userID, "error", err)
			lastErr = err
		}
	}
	return lastErr
}
