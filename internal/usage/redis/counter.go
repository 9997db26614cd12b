package redis

import (
	"context"
	"fmt"

	"ms-pricing/internal/logger"
	"ms-pricing/internal/pricing"

	"github.com/go-redis/redis/v8"
)

// commitScript increments a (rule, customer) counter only while below the
// per-customer cap. Running as a single Lua script makes the check-and-
// increment atomic, so two concurrent bookings cannot both take the last
// slot. A cap of 0 means unlimited.
const commitScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local max = tonumber(ARGV[1])
if max > 0 and current >= max then
  return -1
end
return redis.call("INCR", KEYS[1])
`

// releaseScript decrements the counter, floored at zero.
const releaseScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current <= 0 then
  return 0
end
return redis.call("DECR", KEYS[1])
`

// Counter tracks per-(rule, customer) redemption counts in Redis.
type Counter struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewCounter(client *redis.Client, log *logger.Logger) *Counter {
	return &Counter{Client: client, Logger: log}
}

func counterKey(ruleID, customerID string) string {
	return fmt.Sprintf("rule_uses:%s:%s", ruleID, customerID)
}

// Uses reads the current count. Used as a pre-check during eligibility
// filtering; the value may be stale by commit time, which is why Commit
// re-checks atomically.
func (c *Counter) Uses(ctx context.Context, ruleID, customerID string) (int64, error) {
	val, err := c.Client.Get(ctx, counterKey(ruleID, customerID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// Commit atomically increments the counter if it is below maxPerCustomer.
// Returns pricing.ErrQuotaExhausted when the cap is already reached.
func (c *Counter) Commit(ctx context.Context, ruleID, customerID string, maxPerCustomer int64) error {
	key := counterKey(ruleID, customerID)
	res, err := c.Client.Eval(ctx, commitScript, []string{key}, maxPerCustomer).Int64()
	if err != nil {
		return fmt.Errorf("redis commit error for %s: %w", key, err)
	}
	if res < 0 {
		return pricing.ErrQuotaExhausted
	}
	if c.Logger != nil {
		c.Logger.LogUsage("COMMIT", ruleID, fmt.Sprintf("customer %s now at %d uses", customerID, res))
	}
	return nil
}

// Release decrements the counter for compensation, never below zero.
func (c *Counter) Release(ctx context.Context, ruleID, customerID string) error {
	key := counterKey(ruleID, customerID)
	if _, err := c.Client.Eval(ctx, releaseScript, []string{key}).Int64(); err != nil {
		return fmt.Errorf("redis release error for %s: %w", key, err)
	}
	return nil
}
