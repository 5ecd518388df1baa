package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotCacheKey = "quote:catalog:snapshot:v1"

// Cache stores the last loaded product set in Redis so new processes can
// start serving before the primary source answers.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// LoadProducts returns the cached product set. found is false on a miss.
func (c *Cache) LoadProducts(ctx context.Context) ([]Product, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, snapshotCacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, false, err
	}
	return products, true, nil
}

// StoreProducts serialises products with the configured TTL.
func (c *Cache) StoreProducts(ctx context.Context, products []Product) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(products)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotCacheKey, data, c.ttl).Err()
}

// Invalidate drops the cached product set.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, snapshotCacheKey).Err()
}
