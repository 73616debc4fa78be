package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"auction-core/internal/clock"
	"auction-core/internal/domain"
	"auction-core/pkg/logger"

	"github.com/peterldowns/testy/check"
)

type flakySink struct {
	mu        sync.Mutex
	failFirst int
	attempts  int
	delivered []domain.Notification
}

func (s *flakySink) Deliver(ctx context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failFirst {
		return errors.New("smtp unavailable")
	}
	s.delivered = append(s.delivered, n)
	return nil
}

func (s *flakySink) snapshot() (int, []domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts, append([]domain.Notification(nil), s.delivered...)
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Deliver(ctx context.Context, n domain.Notification) error {
	<-s.release
	return nil
}

func TestDispatcherDeliversToEverySink(t *testing.T) {
	first, second := &flakySink{}, &flakySink{}
	d := NewNotificationDispatcher(DispatcherConfig{Workers: 2, QueueSize: 8, MaxAttempts: 1, Timeout: time.Second},
		clock.NewManual(base), logger.NewNop(), first, second)
	d.Start(context.Background())

	d.Notify(context.Background(), "alice", "Outbid", "A higher bid was placed.")
	d.Notify(context.Background(), "", "ignored", "no recipient")
	d.Stop()

	_, got := first.snapshot()
	check.Equal(t, 1, len(got))
	check.Equal(t, "alice", got[0].UserID)
	check.Equal(t, "Outbid", got[0].Subject)
	check.NotEqual(t, "", got[0].ID)
	check.True(t, got[0].CreatedAt.Equal(base))

	_, got = second.snapshot()
	check.Equal(t, 1, len(got))
}

func TestDispatcherRetriesFailedDelivery(t *testing.T) {
	sink := &flakySink{failFirst: 2}
	d := NewNotificationDispatcher(DispatcherConfig{Workers: 1, QueueSize: 8, MaxAttempts: 3, Timeout: time.Second, Backoff: time.Millisecond},
		clock.NewManual(base), logger.NewNop(), sink)
	d.Start(context.Background())

	d.Notify(context.Background(), "bob", "Closed", "Auction closed.")
	d.Stop()

	attempts, delivered := sink.snapshot()
	check.Equal(t, 3, attempts)
	check.Equal(t, 1, len(delivered))
}

func TestDispatcherGivesUpAfterMaxAttempts(t *testing.T) {
	sink := &flakySink{failFirst: 10}
	d := NewNotificationDispatcher(DispatcherConfig{Workers: 1, QueueSize: 8, MaxAttempts: 2, Timeout: time.Second, Backoff: time.Millisecond},
		clock.NewManual(base), logger.NewNop(), sink)
	d.Start(context.Background())

	d.Notify(context.Background(), "bob", "Closed", "Auction closed.")
	d.Stop()

	attempts, delivered := sink.snapshot()
	check.Equal(t, 2, attempts)
	check.Equal(t, 0, len(delivered))
}

func TestDispatcherNotifyNeverBlocks(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewNotificationDispatcher(DispatcherConfig{Workers: 1, QueueSize: 1, MaxAttempts: 1, Timeout: time.Second},
		clock.NewManual(base), logger.NewNop(), sink)
	d.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Notify(context.Background(), "alice", "s", "b")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	close(sink.release)
	d.Stop()
	d.Notify(context.Background(), "alice", "after stop", "dropped")
}
