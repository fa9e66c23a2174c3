package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// webhookSeenTTL keeps the duplicate-delivery fast path warm well past any
// provider's retry horizon.
const webhookSeenTTL = 24 * time.Hour

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireLock acquires a distributed lock. Used for sweep leadership and as
// the per-AOI dispatch fast path; the conditional job insert stays the
// authoritative guard.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

// WebhookSeen reports whether a delivery key is already cached. Only fully
// processed webhooks are cached, so a hit is always safe to acknowledge.
func (c *Client) WebhookSeen(ctx context.Context, provider, webhookID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, webhookKey(provider, webhookID)).Result()
	return n > 0, err
}

// MarkWebhookSeen caches a delivery key after its processing succeeded
func (c *Client) MarkWebhookSeen(ctx context.Context, provider, webhookID string) error {
	return c.rdb.Set(ctx, webhookKey(provider, webhookID), "1", webhookSeenTTL).Err()
}

func webhookKey(provider, webhookID string) string {
	return fmt.Sprintf("webhook:%s:%s", provider, webhookID)
}
