package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"auction-core/internal/domain"

	"github.com/go-redis/redis/v8"
)

const activeAuctionsKey = "auctions:active"

// createScript inserts a record only when the key is absent and indexes it by deadline while active.
var createScript = redis.NewScript(`
    if redis.call('EXISTS', KEYS[1]) == 1 then
        return 0
    end
    redis.call('HSET', KEYS[1], 'data', ARGV[1], 'version', ARGV[2])
    if ARGV[3] == '1' then
        redis.call('ZADD', KEYS[2], ARGV[4], ARGV[5])
    end
    return 1
`)

// casScript replaces the record when the stored version equals ARGV[1].
// Returns {1, new data} on success, {0, current data} on mismatch, {-1, empty} when the key is missing.
var casScript = redis.NewScript(`
    local current_version = redis.call('HGET', KEYS[1], 'version')
    if current_version == false then
        return {-1, ''}
    end
    if tonumber(current_version) ~= tonumber(ARGV[1]) then
        return {0, redis.call('HGET', KEYS[1], 'data')}
    end
    redis.call('HSET', KEYS[1], 'data', ARGV[2], 'version', ARGV[3])
    if ARGV[4] == '1' then
        redis.call('ZADD', KEYS[2], ARGV[5], ARGV[6])
    else
        redis.call('ZREM', KEYS[2], ARGV[6])
    end
    return {1, ARGV[2]}
`)

// RedisAuctionStore implements domain.AuctionStore on Redis hashes. Both
// writes run as Lua scripts so the version check and the write are atomic.
type RedisAuctionStore struct {
	client *redis.Client
}

func NewRedisAuctionStore(client *redis.Client) *RedisAuctionStore {
	return &RedisAuctionStore{client: client}
}

func auctionKey(auctionID string) string {
	return fmt.Sprintf("auction:%s", auctionID)
}

func (r *RedisAuctionStore) Create(ctx context.Context, auction domain.Auction) error {
	data, err := encodeRecord(auction)
	if err != nil {
		return err
	}

	created, err := createScript.Run(ctx, r.client,
		[]string{auctionKey(auction.ID), activeAuctionsKey},
		data, auction.Version, activeFlag(auction), deadlineScore(auction.Deadline), auction.ID,
	).Int64()
	if err != nil {
		return fmt.Errorf("create auction: %w: %w", domain.ErrStorageUnavailable, err)
	}
	if created == 0 {
		return domain.ErrAuctionExists
	}
	return nil
}

func (r *RedisAuctionStore) Get(ctx context.Context, auctionID string) (domain.Auction, bool, error) {
	data, err := r.client.HGet(ctx, auctionKey(auctionID), "data").Result()
	if errors.Is(err, redis.Nil) {
		return domain.Auction{}, false, nil
	}
	if err != nil {
		return domain.Auction{}, false, fmt.Errorf("get auction: %w: %w", domain.ErrStorageUnavailable, err)
	}

	auction, err := decodeRecord(data)
	if err != nil {
		return domain.Auction{}, false, err
	}
	return auction, true, nil
}

func (r *RedisAuctionStore) CompareAndSwap(ctx context.Context, auctionID string, expectedVersion int64, mutated domain.Auction) (bool, domain.Auction, error) {
	next := mutated.Clone()
	next.ID = auctionID
	next.Version = expectedVersion + 1

	data, err := encodeRecord(next)
	if err != nil {
		return false, domain.Auction{}, err
	}

	result, err := casScript.Run(ctx, r.client,
		[]string{auctionKey(auctionID), activeAuctionsKey},
		expectedVersion, data, next.Version, activeFlag(next), deadlineScore(next.Deadline), auctionID,
	).Result()
	if err != nil {
		return false, domain.Auction{}, fmt.Errorf("swap auction: %w: %w", domain.ErrStorageUnavailable, err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 2 {
		return false, domain.Auction{}, fmt.Errorf("swap auction: unexpected script result %v", result)
	}
	code, _ := resultSlice[0].(int64)
	payload, _ := resultSlice[1].(string)

	switch code {
	case 1:
		return true, next, nil
	case 0:
		current, err := decodeRecord(payload)
		if err != nil {
			return false, domain.Auction{}, err
		}
		return false, current, nil
	default:
		return false, domain.Auction{}, domain.ErrAuctionNotFound
	}
}

func (r *RedisAuctionStore) ListActive(ctx context.Context) ([]domain.Auction, error) {
	ids, err := r.client.ZRange(ctx, activeAuctionsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list active: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return r.load(ctx, ids, func(a domain.Auction) bool {
		return a.Status == domain.AuctionActive
	})
}

func (r *RedisAuctionStore) ListActiveDue(ctx context.Context, before time.Time) ([]domain.Auction, error) {
	// Scores have millisecond granularity; the exact comparison happens after loading.
	ids, err := r.client.ZRangeByScore(ctx, activeAuctionsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", deadlineScore(before)),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return r.load(ctx, ids, func(a domain.Auction) bool {
		return a.IsOverdue(before)
	})
}

func (r *RedisAuctionStore) load(ctx context.Context, ids []string, keep func(domain.Auction) bool) ([]domain.Auction, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, auctionKey(id), "data")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load auctions: %w: %w", domain.ErrStorageUnavailable, err)
	}

	var auctions []domain.Auction
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			continue
		}
		auction, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		if keep(auction) {
			auctions = append(auctions, auction)
		}
	}
	return auctions, nil
}

type record struct {
	ID            string    `json:"id"`
	Seller        string    `json:"seller"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	MinimumPrice  int64     `json:"minimum_price"`
	Deadline      time.Time `json:"deadline"`
	Status        string    `json:"status"`
	HighestBid    int64     `json:"highest_bid"`
	HighestBidder string    `json:"highest_bidder,omitempty"`
	Bidders       []string  `json:"bidders"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func encodeRecord(a domain.Auction) (string, error) {
	bidders := a.Bidders
	if bidders == nil {
		bidders = []string{}
	}
	data, err := json.Marshal(record{
		ID:            a.ID,
		Seller:        a.Seller,
		Title:         a.Title,
		Description:   a.Description,
		MinimumPrice:  int64(a.MinimumPrice),
		Deadline:      a.Deadline.UTC(),
		Status:        a.Status.String(),
		HighestBid:    int64(a.HighestBid),
		HighestBidder: a.HighestBidder,
		Bidders:       bidders,
		Version:       a.Version,
		CreatedAt:     a.CreatedAt.UTC(),
		UpdatedAt:     a.UpdatedAt.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("encode auction: %w", err)
	}
	return string(data), nil
}

func decodeRecord(data string) (domain.Auction, error) {
	var rec record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return domain.Auction{}, fmt.Errorf("decode auction: %w", err)
	}
	status, err := domain.ParseAuctionStatus(rec.Status)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("decode auction %s: %w", rec.ID, err)
	}
	return domain.Auction{
		ID:            rec.ID,
		Seller:        rec.Seller,
		Title:         rec.Title,
		Description:   rec.Description,
		MinimumPrice:  domain.Money(rec.MinimumPrice),
		Deadline:      rec.Deadline.UTC(),
		Status:        status,
		HighestBid:    domain.Money(rec.HighestBid),
		HighestBidder: rec.HighestBidder,
		Bidders:       rec.Bidders,
		Version:       rec.Version,
		CreatedAt:     rec.CreatedAt.UTC(),
		UpdatedAt:     rec.UpdatedAt.UTC(),
	}, nil
}

func activeFlag(a domain.Auction) string {
	if a.Status == domain.AuctionActive {
		return "1"
	}
	return "0"
}

func deadlineScore(t time.Time) int64 {
	return t.UTC().UnixMilli()
}
