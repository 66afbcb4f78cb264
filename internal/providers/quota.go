package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// QuotaChecker consults ProviderConfig's declarative rate limits (current_usage
// vs rate_limit, spec.md §3/§5) before a provider is dispatched, using a Redis
// fixed-window counter so limits are shared across server instances.
type QuotaChecker struct {
	client *redis.Client
}

func NewQuotaChecker(client *redis.Client) *QuotaChecker {
	return &QuotaChecker{client: client}
}

func quotaKey(service string) string { return "trackforge:quota:" + service }

// Allow increments the window counter for service and reports whether it is
// still under limit within window. A nil QuotaChecker (no Redis configured)
// always allows, matching the contract's "no global cap mandated" default.
func (q *QuotaChecker) Allow(ctx context.Context, service string, limit int, window time.Duration) (bool, error) {
	if q == nil || q.client == nil || limit <= 0 {
		return true, nil
	}

	key := quotaKey(service)
	count, err := q.client.Incr(ctx, key).Result()
	if err != nil {
		return true, fmt.Errorf("incrementing quota counter: %w", err)
	}
	if count == 1 {
		q.client.Expire(ctx, key, window)
	}

	return int(count) <= limit, nil
}
