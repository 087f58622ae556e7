package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle is a fixed-window counter per key.
// Key format: throttle:<key>
type Throttle struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewThrottle allows limit attempts per key inside each window.
func NewThrottle(client *redis.Client, limit int, window time.Duration) *Throttle {
	return &Throttle{client: client, limit: int64(limit), window: window}
}

// Allow counts one attempt and reports whether it fits the budget.
func (t *Throttle) Allow(ctx context.Context, key string) (bool, error) {
	k := "throttle:" + key

	count, err := t.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("throttle incr: %w", err)
	}
	// First hit opens the window.
	if count == 1 {
		if err := t.client.Expire(ctx, k, t.window).Err(); err != nil {
			return false, fmt.Errorf("throttle expire: %w", err)
		}
	}
	return count <= t.limit, nil
}
