package imagery_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriplan/nutriplan/internal/imagery"
)

// Runs against a live Redis when NUTRIPLAN_TEST_REDIS_ADDR is set.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("NUTRIPLAN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("NUTRIPLAN_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	prefix := "test:" + uuid.NewString() + ":"
	cache := imagery.NewRedisCache(client, prefix, time.Minute)

	_, err := cache.Get(ctx, "tofu")
	assert.ErrorIs(t, err, imagery.ErrCacheMiss)

	want := imagery.Image{URL: "https://cdn.test/tofu.png", ThumbnailURL: "https://cdn.test/thumbnails/tofu.png"}
	require.NoError(t, cache.Set(ctx, "tofu", want))

	got, err := cache.Get(ctx, "tofu")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ttl, err := client.TTL(ctx, prefix+"tofu").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
}
