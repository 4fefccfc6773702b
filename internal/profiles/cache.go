package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "profile:"

// Cache keeps recently resolved profiles in Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

// GetMany returns the cached profiles among dids keyed by DID.
func (c *Cache) GetMany(ctx context.Context, dids []string) (map[string]Profile, error) {
	found := make(map[string]Profile, len(dids))
	if c == nil || c.client == nil || len(dids) == 0 {
		return found, nil
	}
	keys := make([]string, len(dids))
	for i, did := range dids {
		keys[i] = cacheKeyPrefix + did
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return found, nil
		}
		return found, err
	}
	for _, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var p Profile
		if err := json.Unmarshal([]byte(str), &p); err != nil || p.DID == "" {
			continue
		}
		found[p.DID] = p
	}
	return found, nil
}

// SetMany stores profiles with the configured TTL.
func (c *Cache) SetMany(ctx context.Context, profiles []Profile) error {
	if c == nil || c.client == nil || len(profiles) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, p := range profiles {
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		pipe.Set(ctx, cacheKeyPrefix+p.DID, raw, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Invalidate drops cached entries for dids.
func (c *Cache) Invalidate(ctx context.Context, dids ...string) error {
	if c == nil || c.client == nil || len(dids) == 0 {
		return nil
	}
	keys := make([]string, len(dids))
	for i, did := range dids {
		keys[i] = cacheKeyPrefix + did
	}
	return c.client.Del(ctx, keys...).Err()
}
