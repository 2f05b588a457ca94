// Package imagery attaches pictures to the foods of a diet plan. Images come
// from a curated table, a cache, or are generated and uploaded on demand.
package imagery

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by caches when a key is absent or expired.
var ErrCacheMiss = errors.New("image cache miss")

// Image is a stored picture and its thumbnail.
type Image struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// Cache stores images by normalised food name.
type Cache interface {
	Get(ctx context.Context, key string) (Image, error)
	Set(ctx context.Context, key string, img Image) error
}

// Generator produces PNG bytes for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Store uploads an image and returns where it can be fetched.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (Image, error)
}
