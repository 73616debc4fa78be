package memory

import (
	"context"
	"sync"

	"auction-core/internal/domain"
)

// EventBus is an in-process domain.EventPublisher and domain.EventSubscriber
// for single-node deployments. Slow subscribers drop events rather than
// blocking publishers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[chan *domain.AuctionEvent]struct{}
	buffer      int
}

func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventBus{
		subscribers: make(map[chan *domain.AuctionEvent]struct{}),
		buffer:      buffer,
	}
}

func (b *EventBus) PublishAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		copied := *event
		select {
		case ch <- &copied:
		default:
		}
	}
	return nil
}

func (b *EventBus) SubscribeToAuctionEvents(ctx context.Context, handler domain.EventHandler) error {
	ch := make(chan *domain.AuctionEvent, b.buffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subscribers, ch)
		b.mu.Unlock()
	}()

	for {
		select {
		case event := <-ch:
			_ = handler(event)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
