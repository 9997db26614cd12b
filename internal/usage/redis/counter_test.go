package redis

import (
	"context"
	"sync"
	"testing"

	"ms-pricing/internal/pricing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client using miniredis for testing
// miniredis is an in-memory Redis mock that doesn't require a real Redis server
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	return client, mr
}

func cleanupTestRedis(client *redis.Client, mr *miniredis.Miniredis) {
	if client != nil {
		client.Close()
	}
	if mr != nil {
		mr.Close()
	}
}

func TestCommitIncrementsBelowCap(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	c := NewCounter(client, nil)
	ctx := context.Background()

	// Fresh counter reads as zero
	uses, err := c.Uses(ctx, "rule-1", "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), uses)

	// Two commits fit under a cap of 2
	require.NoError(t, c.Commit(ctx, "rule-1", "cust-1", 2))
	require.NoError(t, c.Commit(ctx, "rule-1", "cust-1", 2))

	uses, err = c.Uses(ctx, "rule-1", "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), uses)

	// Third commit hits the cap
	err = c.Commit(ctx, "rule-1", "cust-1", 2)
	assert.ErrorIs(t, err, pricing.ErrQuotaExhausted)

	// The failed commit must not have incremented
	uses, err = c.Uses(ctx, "rule-1", "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), uses)
}

func TestCommitZeroCapMeansUnlimited(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	c := NewCounter(client, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Commit(ctx, "rule-1", "cust-1", 0))
	}

	uses, err := c.Uses(ctx, "rule-1", "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), uses)
}

func TestCountersAreScopedPerRuleAndCustomer(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	c := NewCounter(client, nil)
	ctx := context.Background()

	require.NoError(t, c.Commit(ctx, "rule-1", "cust-1", 1))

	// Same rule, different customer: independent counter
	require.NoError(t, c.Commit(ctx, "rule-1", "cust-2", 1))
	// Same customer, different rule: independent counter
	require.NoError(t, c.Commit(ctx, "rule-2", "cust-1", 1))

	err := c.Commit(ctx, "rule-1", "cust-1", 1)
	assert.ErrorIs(t, err, pricing.ErrQuotaExhausted)
}

func TestConcurrentCommits_ExactlyCapManySucceed(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	c := NewCounter(client, nil)

	// 20 concurrent bookings chase a per-customer cap of 1: exactly one
	// may win, the atomic Lua check-and-increment closes the race.
	const numGoroutines = 20
	var wg sync.WaitGroup
	successCount := 0
	var mu sync.Mutex

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(attempt int) {
			defer wg.Done()

			err := c.Commit(context.Background(), "rule-hot", "cust-1", 1)
			if err == nil {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, 1, successCount, "Exactly one concurrent commit should win the last slot")

	uses, err := c.Uses(context.Background(), "rule-hot", "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), uses)
}

func TestReleaseFloorsAtZero(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	c := NewCounter(client, nil)
	ctx := context.Background()

	require.NoError(t, c.Commit(ctx, "rule-1", "cust-1", 0))

	require.NoError(t, c.Release(ctx, "rule-1", "cust-1"))
	// Releasing again must not go negative
	require.NoError(t, c.Release(ctx, "rule-1", "cust-1"))

	uses, err := c.Uses(ctx, "rule-1", "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), uses)
}

func TestReleaseFreesASlotForReuse(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	c := NewCounter(client, nil)
	ctx := context.Background()

	require.NoError(t, c.Commit(ctx, "rule-1", "cust-1", 1))
	assert.ErrorIs(t, c.Commit(ctx, "rule-1", "cust-1", 1), pricing.ErrQuotaExhausted)

	// A cancelled booking returns the slot
	require.NoError(t, c.Release(ctx, "rule-1", "cust-1"))
	require.NoError(t, c.Commit(ctx, "rule-1", "cust-1", 1))
}

func TestCounterKeyFormat(t *testing.T) {
	assert.Equal(t, "rule_uses:rule-1:cust-1", counterKey("rule-1", "cust-1"))
}
