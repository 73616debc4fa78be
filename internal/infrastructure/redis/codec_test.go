package redis

import (
	"testing"
	"time"

	"auction-core/internal/domain"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestRecordRoundTripKeepsBidderOrder(t *testing.T) {
	a := domain.Auction{
		ID:            "a1",
		Seller:        "sam",
		Title:         "Camera",
		MinimumPrice:  1000,
		Deadline:      time.Date(2030, 3, 1, 9, 0, 0, 0, time.UTC),
		Status:        domain.AuctionAdjudicated,
		HighestBid:    1300,
		HighestBidder: "alice",
		Bidders:       []string{"alice", "bob", "alice"},
		Version:       3,
	}

	data, err := encodeRecord(a)
	assert.NoError(t, err)
	got, err := decodeRecord(data)
	assert.NoError(t, err)
	check.Equal(t, a, got)
}

func TestDecodeRecordRejectsUnknownStatus(t *testing.T) {
	_, err := decodeRecord(`{"id":"a1","status":"paused"}`)
	check.Error(t, err)
}

func TestParseEvent(t *testing.T) {
	event, err := parseEvent(`{"type":"bid_accepted","auction_id":"a1","user_id":"alice","amount":"10.01","status":"active","version":1}`)
	assert.NoError(t, err)
	check.Equal(t, domain.BidAccepted, event.Type)
	check.Equal(t, domain.Money(1001), event.Amount)
	check.Equal(t, domain.AuctionActive, event.Status)

	_, err = parseEvent(`{"type":"bid_accepted"}`)
	check.Error(t, err)
	_, err = parseEvent(`not json`)
	check.Error(t, err)
}

func TestDeadlineScoreIsMillis(t *testing.T) {
	d := time.Date(2030, 3, 1, 9, 0, 0, int(1500*time.Microsecond), time.UTC)
	check.Equal(t, d.UnixMilli(), deadlineScore(d))
	check.Equal(t, "1", activeFlag(domain.Auction{Status: domain.AuctionActive}))
	check.Equal(t, "0", activeFlag(domain.Auction{Status: domain.AuctionDue}))
}
