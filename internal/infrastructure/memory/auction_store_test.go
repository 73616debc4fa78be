package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"auction-core/internal/domain"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

var base = time.Date(2030, 3, 1, 9, 0, 0, 0, time.UTC)

func newAuction(id string, deadline time.Time) domain.Auction {
	return domain.Auction{
		ID:           id,
		Seller:       "sam",
		Title:        "Lot " + id,
		MinimumPrice: 1000,
		HighestBid:   1000,
		Deadline:     deadline,
		Status:       domain.AuctionActive,
		Bidders:      []string{},
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

func TestAuctionStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewAuctionStore()

	assert.NoError(t, store.Create(ctx, newAuction("a1", base)))
	check.True(t, errors.Is(store.Create(ctx, newAuction("a1", base)), domain.ErrAuctionExists))

	got, found, err := store.Get(ctx, "a1")
	assert.NoError(t, err)
	check.True(t, found)
	check.Equal(t, "Lot a1", got.Title)
	check.Equal(t, int64(0), got.Version)

	_, found, err = store.Get(ctx, "missing")
	assert.NoError(t, err)
	check.False(t, found)
}

func TestAuctionStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewAuctionStore()
	assert.NoError(t, store.Create(ctx, newAuction("a1", base)))

	mutated := newAuction("a1", base)
	mutated.HighestBid = 1500
	mutated.HighestBidder = "bob"

	ok, next, err := store.CompareAndSwap(ctx, "a1", 0, mutated)
	assert.NoError(t, err)
	check.True(t, ok)
	check.Equal(t, int64(1), next.Version)
	check.Equal(t, domain.Money(1500), next.HighestBid)

	stale := newAuction("a1", base)
	stale.HighestBid = 9999
	ok, current, err := store.CompareAndSwap(ctx, "a1", 0, stale)
	assert.NoError(t, err)
	check.False(t, ok)
	check.Equal(t, int64(1), current.Version)
	check.Equal(t, domain.Money(1500), current.HighestBid)

	_, _, err = store.CompareAndSwap(ctx, "missing", 0, stale)
	check.True(t, errors.Is(err, domain.ErrAuctionNotFound))
}

func TestAuctionStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewAuctionStore()
	a := newAuction("a1", base)
	a.Bidders = []string{"bob"}
	assert.NoError(t, store.Create(ctx, a))

	got, _, _ := store.Get(ctx, "a1")
	got.Bidders[0] = "mallory"

	again, _, _ := store.Get(ctx, "a1")
	check.Equal(t, []string{"bob"}, again.Bidders)
}

func TestAuctionStoreConcurrentSwapsSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewAuctionStore()
	assert.NoError(t, store.Create(ctx, newAuction("a1", base)))

	const writers = 64
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mutated := newAuction("a1", base)
			mutated.HighestBidder = fmt.Sprintf("bidder-%d", i)
			ok, _, err := store.CompareAndSwap(ctx, "a1", 0, mutated)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	check.Equal(t, 1, wins)
	got, _, _ := store.Get(ctx, "a1")
	check.Equal(t, int64(1), got.Version)
}

func TestAuctionStoreListing(t *testing.T) {
	ctx := context.Background()
	store := NewAuctionStore()

	assert.NoError(t, store.Create(ctx, newAuction("late", base.Add(2*time.Hour))))
	assert.NoError(t, store.Create(ctx, newAuction("b-early", base)))
	assert.NoError(t, store.Create(ctx, newAuction("a-early", base)))
	banned := newAuction("banned", base.Add(-time.Hour))
	banned.Status = domain.AuctionBanned
	assert.NoError(t, store.Create(ctx, banned))

	active, err := store.ListActive(ctx)
	assert.NoError(t, err)
	check.Equal(t, []string{"a-early", "b-early", "late"}, ids(active))

	due, err := store.ListActiveDue(ctx, base.Add(time.Hour))
	assert.NoError(t, err)
	check.Equal(t, []string{"a-early", "b-early"}, ids(due))

	due, err = store.ListActiveDue(ctx, base)
	assert.NoError(t, err)
	check.Equal(t, 0, len(due))
}

func ids(auctions []domain.Auction) []string {
	out := make([]string, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, a.ID)
	}
	return out
}
