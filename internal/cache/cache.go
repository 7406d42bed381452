// Package cache keeps rendered listing payloads in Redis for a short TTL.
// Listings are derived from metrics snapshots that are themselves allowed to
// lag one sweep interval, so serving a slightly stale page is within the
// system's consistency budget and no invalidation is needed.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "listing:"

// DefaultTTL is how long a cached listing stays valid.
const DefaultTTL = time.Minute

// Connect creates a Redis client and verifies it with a ping.
func Connect(addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// ListingCache stores JSON listing responses keyed by their query shape.
// A nil *ListingCache is a no-op, so callers never branch on whether caching
// is configured.
type ListingCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewListingCache(client *redis.Client, ttl time.Duration, log *slog.Logger) *ListingCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ListingCache{client: client, ttl: ttl, log: log}
}

// Key builds a stable cache key from the listing query parameters.
func Key(parts map[string]string) string {
	keys := make([]string, 0, len(parts))
	for k, v := range parts {
		if v != "" {
			keys = append(keys, k+"="+v)
		}
	}
	sort.Strings(keys)
	return strings.Join(keys, "&")
}

// Get returns the cached payload for the key, or nil on a miss. Redis errors
// degrade to a miss.
func (c *ListingCache) Get(ctx context.Context, key string) []byte {
	if c == nil {
		return nil
	}
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		c.log.Warn("listing cache get", "key", key, "error", err)
		return nil
	}
	return data
}

// Set stores a payload with the configured TTL. Errors are logged, not
// returned; the cache is best-effort.
func (c *ListingCache) Set(ctx context.Context, key string, payload []byte) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+key, payload, c.ttl).Err(); err != nil {
		c.log.Warn("listing cache set", "key", key, "error", err)
	}
}
