package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
)

func TestAuctionAcceptsBids(t *testing.T) {
	deadline := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	a := Auction{Status: AuctionActive, Deadline: deadline}

	check.True(t, a.AcceptsBids(deadline.Add(-time.Second)))
	check.True(t, a.AcceptsBids(deadline))
	check.False(t, a.AcceptsBids(deadline.Add(time.Nanosecond)))

	a.Status = AuctionBanned
	check.False(t, a.AcceptsBids(deadline.Add(-time.Hour)))
}

func TestAuctionIsOverdue(t *testing.T) {
	deadline := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	a := Auction{Status: AuctionActive, Deadline: deadline}

	check.False(t, a.IsOverdue(deadline))
	check.True(t, a.IsOverdue(deadline.Add(time.Millisecond)))

	a.Status = AuctionDue
	check.False(t, a.IsOverdue(deadline.Add(time.Hour)))
}

func TestAuctionClosingStatus(t *testing.T) {
	check.Equal(t, AuctionDue, Auction{}.ClosingStatus())
	check.Equal(t, AuctionAdjudicated, Auction{HighestBidder: "bob"}.ClosingStatus())
}

func TestAuctionParticipants(t *testing.T) {
	a := Auction{Seller: "sam", Bidders: []string{"bob", "carol", "bob", "dave", "carol"}}
	check.Equal(t, []string{"sam", "bob", "carol", "dave"}, a.Participants())

	check.Equal(t, []string{"sam"}, Auction{Seller: "sam"}.Participants())
}

func TestAuctionClone(t *testing.T) {
	a := Auction{ID: "a1", Bidders: []string{"bob"}}
	c := a.Clone()
	c.Bidders[0] = "mallory"
	c.Bidders = append(c.Bidders, "eve")

	check.Equal(t, []string{"bob"}, a.Bidders)
}

func TestAuctionStatusText(t *testing.T) {
	for _, s := range []AuctionStatus{AuctionActive, AuctionBanned, AuctionDue, AuctionAdjudicated} {
		text, err := s.MarshalText()
		check.NoError(t, err)

		var parsed AuctionStatus
		check.NoError(t, parsed.UnmarshalText(text))
		check.Equal(t, s, parsed)
	}

	check.True(t, AuctionBanned.IsTerminal())
	check.False(t, AuctionActive.IsTerminal())

	_, err := ParseAuctionStatus("paused")
	check.Error(t, err)
}

func TestReasonCode(t *testing.T) {
	conflict := &ConflictError{Current: Auction{ID: "a1", Version: 3}}

	check.Equal(t, "", ReasonCode(nil))
	check.Equal(t, "not_found", ReasonCode(ErrAuctionNotFound))
	check.Equal(t, "bid_too_low", ReasonCode(fmt.Errorf("%w: current highest bid is 10.00", ErrBidTooLow)))
	check.Equal(t, "conflict", ReasonCode(conflict))
	check.Equal(t, "storage_unavailable", ReasonCode(fmt.Errorf("get: %w: %w", ErrStorageUnavailable, errors.New("dial tcp"))))
	check.Equal(t, "internal_error", ReasonCode(errors.New("boom")))

	check.True(t, errors.Is(conflict, ErrVersionConflict))
	var target *ConflictError
	check.True(t, errors.As(fmt.Errorf("wrapped: %w", conflict), &target))
	check.Equal(t, int64(3), target.Current.Version)
}
