package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"auction-core/internal/clock"
	"auction-core/internal/domain"
	"auction-core/internal/infrastructure/memory"
	"auction-core/pkg/logger"
)

var base = time.Date(2030, 3, 1, 9, 0, 0, 0, time.UTC)

type sentNotification struct {
	UserID  string
	Subject string
	Body    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(ctx context.Context, userID, subject, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Subject: subject, Body: body})
}

func (n *recordingNotifier) all() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

func (n *recordingNotifier) recipients() []string {
	var out []string
	for _, s := range n.all() {
		out = append(out, s.UserID)
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

type recordingPublisher struct {
	events chan domain.AuctionEvent
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(chan domain.AuctionEvent, 64)}
}

func (p *recordingPublisher) PublishAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	select {
	case p.events <- *event:
	default:
	}
	return nil
}

func (p *recordingPublisher) next(t *testing.T) domain.AuctionEvent {
	t.Helper()
	select {
	case e := <-p.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no auction event published")
		return domain.AuctionEvent{}
	}
}

// hookedStore runs beforeSwap ahead of every compare-and-swap.
type hookedStore struct {
	domain.AuctionStore
	beforeSwap func()
}

func (s *hookedStore) CompareAndSwap(ctx context.Context, id string, expected int64, mutated domain.Auction) (bool, domain.Auction, error) {
	if s.beforeSwap != nil {
		s.beforeSwap()
	}
	return s.AuctionStore.CompareAndSwap(ctx, id, expected, mutated)
}

type fixture struct {
	store     *memory.AuctionStore
	clock     *clock.Manual
	notifier  *recordingNotifier
	publisher *recordingPublisher
	archive   *memory.EventRepository
	bids      *BidProcessor
	resolver  *LifecycleResolver
	manager   *AuctionManager
}

func newFixture() *fixture {
	f := &fixture{
		store:     memory.NewAuctionStore(),
		clock:     clock.NewManual(base),
		notifier:  &recordingNotifier{},
		publisher: newRecordingPublisher(),
		archive:   memory.NewEventRepository(),
	}
	log := logger.NewNop()
	f.bids = NewBidProcessor(f.store, f.notifier, f.publisher, f.archive, f.clock, log)
	f.resolver = NewLifecycleResolver(f.store, f.notifier, f.publisher, f.archive, f.clock, log)
	f.manager = NewAuctionManager(f.store, f.archive, f.notifier, f.publisher, f.clock, log)
	return f
}

// seed stores an active auction with minimum price 10.00 closing at deadline.
func (f *fixture) seed(t *testing.T, id string, deadline time.Time) domain.Auction {
	t.Helper()
	a := domain.Auction{
		ID:           id,
		Seller:       "sam",
		Title:        "Lot " + id,
		MinimumPrice: domain.MustParseMoney("10"),
		HighestBid:   domain.MustParseMoney("10"),
		Deadline:     deadline,
		Status:       domain.AuctionActive,
		Bidders:      []string{},
		CreatedAt:    base,
		UpdatedAt:    base,
	}
	if err := f.store.Create(context.Background(), a); err != nil {
		t.Fatalf("seed auction: %v", err)
	}
	return a
}

func (f *fixture) get(t *testing.T, id string) domain.Auction {
	t.Helper()
	a, found, err := f.store.Get(context.Background(), id)
	if err != nil || !found {
		t.Fatalf("get auction %s: found=%t err=%v", id, found, err)
	}
	return a
}
