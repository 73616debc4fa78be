package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"auction-core/internal/domain"
)

// AuctionStore keeps auctions in process memory. A single mutex makes the
// version check and the write one atomic step.
type AuctionStore struct {
	mu       sync.RWMutex
	auctions map[string]domain.Auction
}

func NewAuctionStore() *AuctionStore {
	return &AuctionStore{auctions: make(map[string]domain.Auction)}
}

func (s *AuctionStore) Create(ctx context.Context, auction domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.auctions[auction.ID]; exists {
		return domain.ErrAuctionExists
	}
	s.auctions[auction.ID] = auction.Clone()
	return nil
}

func (s *AuctionStore) Get(ctx context.Context, auctionID string) (domain.Auction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return domain.Auction{}, false, nil
	}
	return auction.Clone(), true, nil
}

func (s *AuctionStore) CompareAndSwap(ctx context.Context, auctionID string, expectedVersion int64, mutated domain.Auction) (bool, domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.auctions[auctionID]
	if !ok {
		return false, domain.Auction{}, domain.ErrAuctionNotFound
	}
	if current.Version != expectedVersion {
		return false, current.Clone(), nil
	}

	next := mutated.Clone()
	next.ID = auctionID
	next.Version = expectedVersion + 1
	s.auctions[auctionID] = next
	return true, next.Clone(), nil
}

func (s *AuctionStore) ListActive(ctx context.Context) ([]domain.Auction, error) {
	return s.list(func(a domain.Auction) bool {
		return a.Status == domain.AuctionActive
	}), nil
}

func (s *AuctionStore) ListActiveDue(ctx context.Context, before time.Time) ([]domain.Auction, error) {
	return s.list(func(a domain.Auction) bool {
		return a.IsOverdue(before)
	}), nil
}

func (s *AuctionStore) list(match func(domain.Auction) bool) []domain.Auction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Auction
	for _, a := range s.auctions {
		if match(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].ID < out[j].ID
		}
		return out[i].Deadline.Before(out[j].Deadline)
	})
	return out
}
