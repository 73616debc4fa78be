package services

import (
	"context"
	"fmt"

	"auction-core/internal/clock"
	"auction-core/internal/domain"
	"auction-core/pkg/logger"
)

type PlaceBidInput struct {
	AuctionID       string
	BidderID        string
	Amount          string
	ExpectedVersion int64
}

// BidProcessor validates a bid against the current auction snapshot and
// commits it with a single compare-and-swap. A lost race is reported to
// the caller, never retried: the caller bid against information that has
// since changed.
type BidProcessor struct {
	store    domain.AuctionStore
	notifier domain.Notifier
	events   eventEmitter
	clock    clock.Clock
	log      logger.Logger
}

func NewBidProcessor(
	store domain.AuctionStore,
	notifier domain.Notifier,
	publisher domain.EventPublisher,
	archive domain.AuctionEventRepository,
	clk clock.Clock,
	log logger.Logger,
) *BidProcessor {
	return &BidProcessor{
		store:    store,
		notifier: notifier,
		events:   eventEmitter{publisher: publisher, archive: archive, log: log},
		clock:    clk,
		log:      log,
	}
}

func (p *BidProcessor) PlaceBid(ctx context.Context, in PlaceBidInput) (domain.Auction, error) {
	if in.BidderID == "" {
		return domain.Auction{}, domain.ErrUnauthenticated
	}

	auction, found, err := p.store.Get(ctx, in.AuctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	if !found {
		return domain.Auction{}, domain.ErrAuctionNotFound
	}

	now := p.clock.Now()
	if !auction.AcceptsBids(now) {
		return domain.Auction{}, domain.ErrAuctionNotActive
	}
	if in.BidderID == auction.Seller {
		return domain.Auction{}, domain.ErrSelfBidForbidden
	}

	amount, err := domain.ParseMoney(in.Amount)
	if err != nil {
		return domain.Auction{}, err
	}
	if amount <= auction.HighestBid {
		return domain.Auction{}, fmt.Errorf("%w: current highest bid is %s", domain.ErrBidTooLow, auction.HighestBid)
	}

	previousBidder := auction.HighestBidder

	mutated := auction.Clone()
	mutated.HighestBid = amount
	mutated.HighestBidder = in.BidderID
	mutated.Bidders = append(mutated.Bidders, in.BidderID)
	mutated.UpdatedAt = now

	ok, current, err := p.store.CompareAndSwap(ctx, auction.ID, in.ExpectedVersion, mutated)
	if err != nil {
		return domain.Auction{}, err
	}
	if !ok {
		p.log.Info("Bid lost version race", "auction_id", auction.ID, "bidder_id", in.BidderID,
			"expected_version", in.ExpectedVersion, "current_version", current.Version)
		return domain.Auction{}, &domain.ConflictError{Current: current}
	}

	p.log.Info("Bid accepted", "auction_id", current.ID, "bidder_id", in.BidderID,
		"amount", amount.String(), "version", current.Version)

	p.notifyAccepted(ctx, current, previousBidder)
	p.events.emit(eventFor(domain.BidAccepted, current, in.BidderID, now))
	return current, nil
}

func (p *BidProcessor) notifyAccepted(ctx context.Context, auction domain.Auction, previousBidder string) {
	amount := auction.HighestBid.String()

	p.notifier.Notify(ctx, auction.Seller, "New bid on "+auction.Title,
		fmt.Sprintf("Your auction %q received a new highest bid of %s.", auction.Title, amount))
	p.notifier.Notify(ctx, auction.HighestBidder, "Bid accepted on "+auction.Title,
		fmt.Sprintf("You hold the highest bid of %s on %q.", amount, auction.Title))

	if previousBidder != "" && previousBidder != auction.HighestBidder {
		p.notifier.Notify(ctx, previousBidder, "You have been outbid on "+auction.Title,
			fmt.Sprintf("A bid of %s was placed on %q.", amount, auction.Title))
	}
}
