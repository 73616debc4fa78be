package domain

import (
	"fmt"
	"strings"
	"time"
)

type Auction struct {
	ID            string
	Seller        string
	Title         string
	Description   string
	MinimumPrice  Money
	Deadline      time.Time
	Status        AuctionStatus
	HighestBid    Money
	HighestBidder string // empty until the first accepted bid
	// Bidders keeps one entry per accepted bid, in acceptance order.
	Bidders   []string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasBids reports whether any bid was ever accepted.
func (a Auction) HasBids() bool {
	return a.HighestBidder != ""
}

// AcceptsBids reports whether a bid may be applied at now. The deadline
// itself is still inside the bidding window.
func (a Auction) AcceptsBids(now time.Time) bool {
	return a.Status == AuctionActive && !now.After(a.Deadline)
}

// IsOverdue reports whether the auction is active with its deadline strictly before now.
func (a Auction) IsOverdue(now time.Time) bool {
	return a.Status == AuctionActive && a.Deadline.Before(now)
}

// ClosingStatus is the terminal status the auction takes once its deadline passes.
func (a Auction) ClosingStatus() AuctionStatus {
	if a.HasBids() {
		return AuctionAdjudicated
	}
	return AuctionDue
}

// Participants returns the seller followed by every distinct bidder in first-bid order.
func (a Auction) Participants() []string {
	seen := make(map[string]struct{}, len(a.Bidders)+1)
	out := make([]string, 0, len(a.Bidders)+1)
	for _, id := range append([]string{a.Seller}, a.Bidders...) {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Clone returns a copy that shares no mutable state with a.
func (a Auction) Clone() Auction {
	c := a
	if a.Bidders != nil {
		c.Bidders = append([]string(nil), a.Bidders...)
	}
	return c
}

type AuctionStatus int

const (
	AuctionActive AuctionStatus = iota
	AuctionBanned
	AuctionDue
	AuctionAdjudicated
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionActive:
		return "active"
	case AuctionBanned:
		return "banned"
	case AuctionDue:
		return "due"
	case AuctionAdjudicated:
		return "adjudicated"
	default:
		return "unknown"
	}
}

func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionBanned || s == AuctionDue || s == AuctionAdjudicated
}

func ParseAuctionStatus(v string) (AuctionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "active":
		return AuctionActive, nil
	case "banned":
		return AuctionBanned, nil
	case "due":
		return AuctionDue, nil
	case "adjudicated":
		return AuctionAdjudicated, nil
	default:
		return AuctionActive, fmt.Errorf("unknown auction status %q", v)
	}
}

func (s AuctionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AuctionStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseAuctionStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type AuctionEvent struct {
	Type      AuctionEventType `json:"type"`
	AuctionID string           `json:"auction_id"`
	UserID    string           `json:"user_id,omitempty"`
	Amount    Money            `json:"amount"`
	Status    AuctionStatus    `json:"status"`
	Version   int64            `json:"version"`
	Timestamp time.Time        `json:"timestamp"`
}

type AuctionEventType string

const (
	BidAccepted        AuctionEventType = "bid_accepted"
	AuctionUpdated     AuctionEventType = "auction_updated"
	AuctionClosed      AuctionEventType = "auction_closed"
	AuctionBannedEvent AuctionEventType = "auction_banned"
)

// Notification is a single message addressed to one user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ResolvedAuction summarises an auction closed by a lifecycle sweep.
type ResolvedAuction struct {
	ID            string
	Title         string
	Status        AuctionStatus
	HighestBid    Money
	HighestBidder string
}
