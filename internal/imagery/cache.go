package imagery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCacheTTL is how long a generated image URL is reused.
const DefaultCacheTTL = 30 * 24 * time.Hour

type memoryEntry struct {
	img       Image
	expiresAt time.Time
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a cache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the cache clock. Used by tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

// Get returns the image for key or ErrCacheMiss.
func (c *MemoryCache) Get(_ context.Context, key string) (Image, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Image{}, ErrCacheMiss
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return Image{}, ErrCacheMiss
	}
	return e.img, nil
}

// Set stores img under key.
func (c *MemoryCache) Set(_ context.Context, key string, img Image) error {
	c.mu.Lock()
	c.entries[key] = memoryEntry{img: img, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Len returns the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TieredCache reads through a fast local cache to a shared one and
// back-fills the local tier on shared hits. Shared-tier errors degrade to
// misses.
type TieredCache struct {
	local  Cache
	shared Cache
	logger zerolog.Logger
}

// NewTieredCache combines a local and a shared cache.
func NewTieredCache(local, shared Cache, logger zerolog.Logger) *TieredCache {
	return &TieredCache{local: local, shared: shared, logger: logger}
}

// Get checks the local tier, then the shared tier.
func (c *TieredCache) Get(ctx context.Context, key string) (Image, error) {
	if img, err := c.local.Get(ctx, key); err == nil {
		return img, nil
	}
	img, err := c.shared.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key).Msg("shared image cache read failed")
		}
		return Image{}, ErrCacheMiss
	}
	_ = c.local.Set(ctx, key, img)
	return img, nil
}

// Set writes both tiers. A shared-tier failure is logged and returned after
// the local write.
func (c *TieredCache) Set(ctx context.Context, key string, img Image) error {
	_ = c.local.Set(ctx, key, img)
	if err := c.shared.Set(ctx, key, img); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("shared image cache write failed")
		return err
	}
	return nil
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*TieredCache)(nil)
)
