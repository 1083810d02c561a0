package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSlowPath is the storage-backed second cache layer (spec §4.4
// "layered in-memory + storage-backed contract"), grounded on the
// teacher's infrastructure/cache.RedisCache: a thin go-redis client
// wrapper, JSON-encoding Entry instead of the teacher's raw strings since
// SlowPath entries carry structured DataPoint slices plus an expiry.
type RedisSlowPath struct {
	c   *redis.Client
	ttl time.Duration
}

var _ SlowPath = (*RedisSlowPath)(nil)

// NewRedisSlowPath dials a go-redis client against addr/db. ttl is the
// fallback TTL applied to entries whose Cache-derived timeframe TTL has
// already elapsed by the time they reach Set (defensive floor only).
func NewRedisSlowPath(addr string, db int, ttl time.Duration) *RedisSlowPath {
	return &RedisSlowPath{
		c:   redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		ttl: ttl,
	}
}

// Close releases the underlying connection pool.
func (r *RedisSlowPath) Close() error { return r.c.Close() }

// Get implements SlowPath.
func (r *RedisSlowPath) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// Set implements SlowPath, expiring the Redis key at entry.ExpiresAt (or
// r.ttl if that has already passed).
func (r *RedisSlowPath) Set(ctx context.Context, key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		ttl = r.ttl
	}
	return r.c.Set(ctx, key, raw, ttl).Err()
}
