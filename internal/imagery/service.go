package imagery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/provider/resilience"
)

const (
	// BreakerName identifies the generation circuit in the provider registry.
	BreakerName = "food-images"

	defaultFailureThreshold = 5
	defaultOpenTimeout      = 60 * time.Second
	defaultConcurrency      = 4
	contentTypePNG          = "image/png"
)

// errNotConfigured is returned internally when generation is disabled.
var errNotConfigured = errors.New("image generation not configured")

// Config holds the enrichment dependencies. Only Fallback is required; a
// service without Generator or Store serves curated and cached images only.
type Config struct {
	Curated   *Curated
	Cache     Cache
	Generator Generator
	Store     Store
	Fallback  Image

	// FailureThreshold is the number of consecutive generation failures
	// that opens the circuit. Default: 5
	FailureThreshold uint32

	// OpenTimeout is how long the circuit stays open. Default: 60s
	OpenTimeout time.Duration

	// Concurrency bounds parallel lookups per EnrichMeals call. Default: 4
	Concurrency int

	Registry *resilience.Registry
	Logger   zerolog.Logger
}

// Service resolves food images. It never fails: anything it cannot resolve
// gets the fallback image.
type Service struct {
	curated     *Curated
	cache       Cache
	generator   Generator
	store       Store
	fallback    Image
	concurrency int
	guard       *resilience.Guard[Image]
	flight      singleflight.Group
	logger      zerolog.Logger
}

// NewService creates an image enrichment service.
func NewService(cfg Config) *Service {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = defaultFailureThreshold
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache(DefaultCacheTTL)
	}

	logger := cfg.Logger.With().Str("component", "imagery").Logger()
	guard := resilience.NewGuard[Image](resilience.CircuitBreakerConfig{
		Name:        BreakerName,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: resilience.ConsecutiveFailures(threshold),
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("image generation circuit changed state")
		},
	}, cfg.Registry)

	return &Service{
		curated:     cfg.Curated,
		cache:       cache,
		generator:   cfg.Generator,
		store:       cfg.Store,
		fallback:    cfg.Fallback,
		concurrency: concurrency,
		guard:       guard,
		logger:      logger,
	}
}

// EnrichMeals sets ImageURL and ThumbnailURL on every food and alternative
// that lacks them. Foods sharing a normalised name are resolved once.
func (s *Service) EnrichMeals(ctx context.Context, meals []diet.Meal) {
	keys := make(map[string]string)
	visitFoods(meals, func(f *diet.Food) {
		if f.ImageURL != "" {
			return
		}
		if key := diet.Normalize(f.Name); key != "" {
			keys[key] = f.Name
		}
	})
	if len(keys) == 0 {
		return
	}

	var mu sync.Mutex
	resolved := make(map[string]Image, len(keys))

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for key, name := range keys {
		g.Go(func() error {
			img := s.Resolve(ctx, name)
			mu.Lock()
			resolved[key] = img
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	visitFoods(meals, func(f *diet.Food) {
		if f.ImageURL != "" {
			return
		}
		img, ok := resolved[diet.Normalize(f.Name)]
		if !ok {
			img = s.fallback
		}
		f.ImageURL = img.URL
		f.ThumbnailURL = img.ThumbnailURL
	})
}

// Resolve returns the image for one food name, falling back on any failure.
func (s *Service) Resolve(ctx context.Context, name string) Image {
	if img, ok := s.curated.Lookup(name); ok {
		return img
	}

	key := diet.Normalize(name)
	if img, err := s.cache.Get(ctx, key); err == nil {
		return img
	}

	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		return s.generate(ctx, key, name)
	})
	if err != nil {
		if !errors.Is(err, errNotConfigured) && ctx.Err() == nil {
			s.logger.Warn().Err(err).Str("food", name).Msg("image generation failed, using fallback")
		}
		return s.fallback
	}
	return v.(Image)
}

func (s *Service) generate(ctx context.Context, key, name string) (Image, error) {
	if s.generator == nil || s.store == nil {
		return Image{}, errNotConfigured
	}

	img, err := s.guard.Execute(func() (Image, error) {
		data, err := s.generator.Generate(ctx, imagePrompt(name))
		if err != nil {
			return Image{}, fmt.Errorf("generating image: %w", err)
		}
		img, err := s.store.Put(ctx, "foods/"+slugify(key)+".png", data, contentTypePNG)
		if err != nil {
			return Image{}, fmt.Errorf("uploading image: %w", err)
		}
		return img, nil
	})
	if err != nil {
		return Image{}, err
	}

	if err := s.cache.Set(ctx, key, img); err != nil {
		s.logger.Debug().Err(err).Str("food", name).Msg("image cache write failed")
	}
	return img, nil
}

// CircuitState reports the generation circuit.
func (s *Service) CircuitState() gobreaker.State {
	return s.guard.CircuitBreakerState()
}

func imagePrompt(name string) string {
	return "A realistic, appetising overhead photo of a single serving of " + name +
		" on a plain white plate, natural light, no text."
}

func visitFoods(meals []diet.Meal, fn func(*diet.Food)) {
	for i := range meals {
		for j := range meals[i].Foods {
			f := &meals[i].Foods[j]
			fn(f)
			for k := range f.Alternatives {
				fn(&f.Alternatives[k])
			}
		}
	}
}

// slugify turns a normalised name into a URL-safe object key segment.
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range diet.Normalize(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

var _ diet.ImageEnricher = (*Service)(nil)
