package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auction-core/internal/clock"
	"auction-core/internal/domain"
	"auction-core/internal/infrastructure/memory"
	"auction-core/internal/services"
	"auction-core/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

var base = time.Date(2030, 3, 1, 9, 0, 0, 0, time.UTC)

type nopNotifier struct{}

func (nopNotifier) Notify(ctx context.Context, userID, subject, body string) {}

func newServer(t *testing.T) (*httptest.Server, *ConnectionManager) {
	t.Helper()
	store := memory.NewAuctionStore()
	for id, deadline := range map[string]time.Time{"open": base.Add(time.Hour), "closed": base.Add(-time.Hour)} {
		assert.NoError(t, store.Create(context.Background(), domain.Auction{
			ID: id, Seller: "sam", Title: id, MinimumPrice: 1000, HighestBid: 1000,
			Deadline: deadline, Status: domain.AuctionActive, Bidders: []string{},
		}))
	}

	clk := clock.NewManual(base)
	log := logger.NewNop()
	cm := NewConnectionManager(log)
	manager := services.NewAuctionManager(store, nil, nopNotifier{}, nil, clk, log)
	bids := services.NewBidProcessor(store, nopNotifier{}, nil, nil, clk, log)

	srv := httptest.NewServer(NewWebSocketHandler(bids, manager, cm, clk, log).Routes())
	t.Cleanup(srv.Close)
	return srv, cm
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestHandleConnectionRejects(t *testing.T) {
	srv, _ := newServer(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown auction", "/ws/auctions/nope?user_id=alice", http.StatusNotFound},
		{"closed auction", "/ws/auctions/closed?user_id=alice", http.StatusForbidden},
		{"anonymous", "/ws/auctions/open", http.StatusUnauthorized},
		{"anonymous on unknown auction", "/ws/auctions/nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tt.path), nil)
			check.Error(t, err)
			assert.NotNil(t, resp)
			check.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestPlaceBidOverWebSocket(t *testing.T) {
	srv, cm := newServer(t)

	header := http.Header{}
	header.Set("X-User-ID", "alice")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/auctions/open"), header)
	assert.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	assert.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var pong map[string]interface{}
	assert.NoError(t, conn.ReadJSON(&pong))
	check.Equal(t, "pong", pong["type"].(string))
	check.Equal(t, 1, len(cm.GetConnectionsForUser("alice")))

	assert.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "place_bid", "amount": "10.50", "expected_version": 0}))
	var accepted map[string]interface{}
	assert.NoError(t, conn.ReadJSON(&accepted))
	check.Equal(t, "bid_accepted", accepted["type"].(string))
	check.Equal(t, "10.50", accepted["current_bid"].(string))

	assert.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "place_bid", "amount": "11", "expected_version": 0}))
	var rejected map[string]interface{}
	assert.NoError(t, conn.ReadJSON(&rejected))
	check.Equal(t, "bid_rejected", rejected["type"].(string))
	check.Equal(t, "conflict", rejected["code"].(string))
	check.Equal(t, float64(1), rejected["version"].(float64))
}

func TestPlaceBidWithoutExpectedVersionIsRejected(t *testing.T) {
	srv, _ := newServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/auctions/open?user_id=bob"), nil)
	assert.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	assert.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "place_bid", "amount": "12.00"}))
	var rejected map[string]interface{}
	assert.NoError(t, conn.ReadJSON(&rejected))
	check.Equal(t, "bid_rejected", rejected["type"].(string))
	check.Equal(t, "invalid_request_body", rejected["code"].(string))

	// The auction is untouched, so a versioned bid still applies at version 0.
	assert.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "place_bid", "amount": "12.00", "expected_version": 0}))
	var accepted map[string]interface{}
	assert.NoError(t, conn.ReadJSON(&accepted))
	check.Equal(t, "bid_accepted", accepted["type"].(string))
	check.Equal(t, float64(1), accepted["version"].(float64))
}
