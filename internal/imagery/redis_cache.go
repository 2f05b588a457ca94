package imagery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares generated image URLs between instances.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisCache stores entries under prefix with the given ttl.
func NewRedisCache(client redis.Cmdable, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "food-image:"
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached image or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) (Image, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Image{}, ErrCacheMiss
	}
	if err != nil {
		return Image{}, fmt.Errorf("redis get: %w", err)
	}

	var img Image
	if err := json.Unmarshal(data, &img); err != nil {
		return Image{}, fmt.Errorf("decoding cached image: %w", err)
	}
	return img, nil
}

// Set stores img as JSON with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, key string, img Image) error {
	data, err := json.Marshal(img)
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

var _ Cache = (*RedisCache)(nil)
