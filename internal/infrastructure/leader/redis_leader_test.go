package leader

import (
	"context"
	"os"
	"testing"
	"time"

	"auction-core/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestRedisLeaderElection(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	t.Cleanup(func() {
		client.Del(ctx, leaderKey)
		_ = client.Close()
	})
	client.Del(ctx, leaderKey)

	first := NewRedisLeaderElection(client, 3*time.Second, logger.NewNop())
	second := NewRedisLeaderElection(client, 3*time.Second, logger.NewNop())

	ok, err := first.BecomeLeader(ctx, "node-a")
	assert.NoError(t, err)
	check.True(t, ok)

	ok, err = first.BecomeLeader(ctx, "node-a")
	assert.NoError(t, err)
	check.True(t, ok)

	ok, err = second.BecomeLeader(ctx, "node-b")
	assert.NoError(t, err)
	check.False(t, ok)

	// Releasing someone else's lease is a no-op.
	assert.NoError(t, second.ReleaseLeadership(ctx, "node-b"))
	leader, err := first.IsLeader(ctx, "node-a")
	assert.NoError(t, err)
	check.True(t, leader)

	assert.NoError(t, first.ReleaseLeadership(ctx, "node-a"))
	ok, err = second.BecomeLeader(ctx, "node-b")
	assert.NoError(t, err)
	check.True(t, ok)
	assert.NoError(t, second.ReleaseLeadership(ctx, "node-b"))
}
