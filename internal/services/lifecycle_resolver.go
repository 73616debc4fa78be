package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-core/internal/clock"
	"auction-core/internal/domain"
	"auction-core/pkg/logger"
)

// resolveAttempts bounds the compare-and-swap attempts per auction and sweep.
const resolveAttempts = 2

// LifecycleResolver closes active auctions whose deadline has passed. It is
// safe to run concurrently with bids and with other resolvers: every
// transition goes through the store's compare-and-swap.
type LifecycleResolver struct {
	store    domain.AuctionStore
	notifier domain.Notifier
	events   eventEmitter
	clock    clock.Clock
	log      logger.Logger
}

func NewLifecycleResolver(
	store domain.AuctionStore,
	notifier domain.Notifier,
	publisher domain.EventPublisher,
	archive domain.AuctionEventRepository,
	clk clock.Clock,
	log logger.Logger,
) *LifecycleResolver {
	return &LifecycleResolver{
		store:    store,
		notifier: notifier,
		events:   eventEmitter{publisher: publisher, archive: archive, log: log},
		clock:    clk,
		log:      log,
	}
}

// ResolveDue transitions every auction overdue at now and returns the ones
// this call closed. A failure on one auction does not stop the sweep; the
// returned error joins every per-auction failure.
func (r *LifecycleResolver) ResolveDue(ctx context.Context, now time.Time) ([]domain.ResolvedAuction, error) {
	due, err := r.store.ListActiveDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due auctions: %w", err)
	}

	var (
		resolved []domain.ResolvedAuction
		errs     []error
	)
	for _, auction := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		closed, ok, err := r.resolve(ctx, auction, now)
		if err != nil {
			r.log.Error("Failed to resolve auction", "auction_id", auction.ID, "error", err)
			errs = append(errs, fmt.Errorf("resolve auction %s: %w", auction.ID, err))
			continue
		}
		if !ok {
			continue
		}

		resolved = append(resolved, domain.ResolvedAuction{
			ID:            closed.ID,
			Title:         closed.Title,
			Status:        closed.Status,
			HighestBid:    closed.HighestBid,
			HighestBidder: closed.HighestBidder,
		})
		r.notifyClosed(ctx, closed)
		r.events.emit(eventFor(domain.AuctionClosed, closed, closed.HighestBidder, now))
	}

	if len(resolved) > 0 {
		r.log.Info("Resolved due auctions", "count", len(resolved), "now", now)
	}
	return resolved, errors.Join(errs...)
}

func (r *LifecycleResolver) resolve(ctx context.Context, candidate domain.Auction, now time.Time) (domain.Auction, bool, error) {
	for attempt := 0; attempt < resolveAttempts; attempt++ {
		if !candidate.IsOverdue(now) {
			return domain.Auction{}, false, nil
		}

		mutated := candidate.Clone()
		mutated.Status = candidate.ClosingStatus()
		mutated.UpdatedAt = now

		ok, current, err := r.store.CompareAndSwap(ctx, candidate.ID, candidate.Version, mutated)
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return domain.Auction{}, false, nil
		}
		if err != nil {
			return domain.Auction{}, false, err
		}
		if ok {
			return current, true, nil
		}
		candidate = current
	}

	r.log.Warn("Giving up on auction for this sweep", "auction_id", candidate.ID, "version", candidate.Version)
	return domain.Auction{}, false, nil
}

func (r *LifecycleResolver) notifyClosed(ctx context.Context, auction domain.Auction) {
	subject := "Auction closed: " + auction.Title

	var body string
	if auction.Status == domain.AuctionAdjudicated {
		body = fmt.Sprintf("Auction %q has been resolved. Winning bid %s.", auction.Title, auction.HighestBid)
	} else {
		body = fmt.Sprintf("Auction %q has ended without bids.", auction.Title)
	}

	for _, userID := range auction.Participants() {
		r.notifier.Notify(ctx, userID, subject, body)
	}
}
