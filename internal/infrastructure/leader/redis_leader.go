package leader

import (
	"context"
	"errors"
	"sync"
	"time"

	"auction-core/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const leaderKey = "auction_resolver_leader"

var releaseScript = redis.NewScript(`
    if redis.call("GET", KEYS[1]) == ARGV[1] then
        return redis.call("DEL", KEYS[1])
    else
        return 0
    end
`)

var renewScript = redis.NewScript(`
    if redis.call("GET", KEYS[1]) == ARGV[1] then
        return redis.call("PEXPIRE", KEYS[1], ARGV[2])
    else
        return 0
    end
`)

// RedisLeaderElection holds a TTL lease in Redis. Only the holder runs the
// lifecycle sweep; the lease is renewed at a third of its TTL.
type RedisLeaderElection struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger

	mu        sync.Mutex
	heartbeat context.CancelFunc
}

func NewRedisLeaderElection(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisLeaderElection {
	return &RedisLeaderElection{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

func (r *RedisLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	acquired, err := r.client.SetNX(ctx, leaderKey, instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}
	if !acquired {
		// Already holding the lease counts as leadership.
		return r.IsLeader(ctx, instanceID)
	}

	r.startHeartbeat(instanceID)
	return true, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	currentLeader, err := r.client.Get(ctx, leaderKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	return currentLeader == instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	r.stopHeartbeat()
	_, err := releaseScript.Run(ctx, r.client, []string{leaderKey}, instanceID).Result()
	return err
}

func (r *RedisLeaderElection) startHeartbeat(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.heartbeat != nil {
		r.heartbeat()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.heartbeat = cancel
	go r.maintainLeadership(ctx, instanceID)
}

func (r *RedisLeaderElection) stopHeartbeat() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.heartbeat != nil {
		r.heartbeat()
		r.heartbeat = nil
	}
}

func (r *RedisLeaderElection) maintainLeadership(ctx context.Context, instanceID string) {
	ticker := time.NewTicker(r.ttl / 3) // Refresh at 1/3 of TTL
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		renewCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		result, err := renewScript.Run(renewCtx, r.client, []string{leaderKey},
			instanceID, r.ttl.Milliseconds()).Int64()
		cancel()

		if err != nil || result == 0 {
			r.log.Warn("Lost resolver leadership", "instance_id", instanceID, "error", err)
			return
		}
	}
}
