package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"auction-core/internal/clock"
	"auction-core/internal/domain"
	"auction-core/internal/services"
	"auction-core/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	bidTimeout     = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type BidPlacer interface {
	PlaceBid(ctx context.Context, in services.PlaceBidInput) (domain.Auction, error)
}

type AuctionReader interface {
	GetAuction(ctx context.Context, auctionID string) (domain.Auction, error)
}

type clientMessage struct {
	Type            string `json:"type"`
	Amount          string `json:"amount"`
	ExpectedVersion *int64 `json:"expected_version"`
}

// WebSocketHandler serves the live feed of one auction and accepts bids over it.
type WebSocketHandler struct {
	bids        BidPlacer
	auctions    AuctionReader
	connManager domain.ConnectionManager
	clock       clock.Clock
	log         logger.Logger
}

func NewWebSocketHandler(bids BidPlacer, auctions AuctionReader, connManager domain.ConnectionManager,
	clk clock.Clock, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		bids:        bids,
		auctions:    auctions,
		connManager: connManager,
		clock:       clk,
		log:         log,
	}
}

// Routes mounts the websocket endpoints on a gorilla/mux router.
func (h *WebSocketHandler) Routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/ws/auctions/{auctionID}", h.HandleConnection).Methods(http.MethodGet)
	return router
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionID"]

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		http.Error(w, "user id required", http.StatusUnauthorized)
		return
	}

	auction, err := h.auctions.GetAuction(r.Context(), auctionID)
	if errors.Is(err, domain.ErrAuctionNotFound) {
		http.Error(w, "auction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("Failed to load auction", "auction_id", auctionID, "error", err)
		http.Error(w, "auction unavailable", http.StatusServiceUnavailable)
		return
	}
	if !auction.AcceptsBids(h.clock.Now()) {
		h.log.Info("Rejected connection, auction is closed", "auction_id", auctionID, "status", auction.Status)
		http.Error(w, "auction is not active", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := NewWebSocketConnection(conn, userID, auctionID)
	if err := h.connManager.RegisterConnection(userID, auctionID, wsConn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		_ = wsConn.Close()
		return
	}

	go h.handleMessages(wsConn)
}

func (h *WebSocketHandler) handleMessages(conn *WebSocketConnection) {
	defer func() {
		_ = h.connManager.UnregisterConnection(conn)
		_ = conn.Close()
	}()

	conn.conn.SetReadLimit(maxMessageSize)
	for {
		var msg clientMessage
		if err := conn.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Websocket read failed", "user_id", conn.userID, "auction_id", conn.auctionID, "error", err)
			}
			return
		}

		switch msg.Type {
		case "place_bid":
			h.handleBidMessage(conn, msg)
		case "ping":
			_ = conn.Send(map[string]string{"type": "pong"})
		default:
			_ = conn.Send(map[string]string{"type": "error", "message": "unknown message type"})
		}
	}
}

func (h *WebSocketHandler) handleBidMessage(conn *WebSocketConnection, msg clientMessage) {
	if msg.ExpectedVersion == nil {
		_ = conn.Send(map[string]interface{}{
			"type":  "bid_rejected",
			"code":  "invalid_request_body",
			"error": "expected_version is required",
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), bidTimeout)
	defer cancel()

	auction, err := h.bids.PlaceBid(ctx, services.PlaceBidInput{
		AuctionID:       conn.auctionID,
		BidderID:        conn.userID,
		Amount:          msg.Amount,
		ExpectedVersion: *msg.ExpectedVersion,
	})
	if err != nil {
		reply := map[string]interface{}{
			"type":  "bid_rejected",
			"code":  domain.ReasonCode(err),
			"error": err.Error(),
		}
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			reply["current_bid"] = conflict.Current.HighestBid
			reply["version"] = conflict.Current.Version
		}
		_ = conn.Send(reply)
		return
	}

	_ = conn.Send(map[string]interface{}{
		"type":        "bid_accepted",
		"current_bid": auction.HighestBid,
		"version":     auction.Version,
	})
}

// WebSocketConnection serialises writes to one gorilla connection.
type WebSocketConnection struct {
	conn      *websocket.Conn
	userID    string
	auctionID string
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func NewWebSocketConnection(conn *websocket.Conn, userID, auctionID string) *WebSocketConnection {
	return &WebSocketConnection{
		conn:      conn,
		userID:    userID,
		auctionID: auctionID,
	}
}

// Send writes pre-encoded JSON as-is and encodes anything else.
func (wsc *WebSocketConnection) Send(message interface{}) error {
	wsc.writeMu.Lock()
	defer wsc.writeMu.Unlock()

	_ = wsc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if data, ok := message.([]byte); ok {
		return wsc.conn.WriteMessage(websocket.TextMessage, data)
	}
	return wsc.conn.WriteJSON(message)
}

func (wsc *WebSocketConnection) Close() error {
	var err error
	wsc.closeOnce.Do(func() {
		wsc.writeMu.Lock()
		_ = wsc.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = wsc.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		wsc.writeMu.Unlock()
		err = wsc.conn.Close()
	})
	return err
}

func (wsc *WebSocketConnection) UserID() string {
	return wsc.userID
}

func (wsc *WebSocketConnection) AuctionID() string {
	return wsc.auctionID
}
