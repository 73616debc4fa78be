package memory

import (
	"context"
	"sort"
	"sync"

	"auction-core/internal/domain"
)

type EventRepository struct {
	mu     sync.RWMutex
	events map[string][]*domain.AuctionEvent
}

func NewEventRepository() *EventRepository {
	return &EventRepository{events: make(map[string][]*domain.AuctionEvent)}
}

func (r *EventRepository) SaveAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *event
	r.events[event.AuctionID] = append(r.events[event.AuctionID], &copied)
	return nil
}

func (r *EventRepository) GetAuctionHistory(ctx context.Context, auctionID string) ([]*domain.AuctionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := append([]*domain.AuctionEvent(nil), r.events[auctionID]...)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Version < history[j].Version
	})
	return history, nil
}
