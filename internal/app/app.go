// Package app wires the NutriPlan services from configuration. Both the API
// server and the worker build on it.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/nutriplan/nutriplan/internal/config"
	"github.com/nutriplan/nutriplan/internal/database"
	"github.com/nutriplan/nutriplan/internal/diet"
	dietopenai "github.com/nutriplan/nutriplan/internal/diet/openai"
	"github.com/nutriplan/nutriplan/internal/imagery"
	imageopenai "github.com/nutriplan/nutriplan/internal/imagery/openai"
	"github.com/nutriplan/nutriplan/internal/imagery/s3store"
	"github.com/nutriplan/nutriplan/internal/nutrition"
	"github.com/nutriplan/nutriplan/internal/provider/resilience"
	"github.com/nutriplan/nutriplan/internal/user"
)

// App holds the wired services and the connections they share.
type App struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Registry *resilience.Registry

	Users   *user.Service
	Diet    *diet.Service
	Tracker *diet.Tracker

	closers []func()
}

// Pinger adapts a ping function to the readiness check.
type Pinger func(ctx context.Context) error

// Ping calls f.
func (f Pinger) Ping(ctx context.Context) error { return f(ctx) }

// NewLogger returns the JSON process logger at the configured level.
func NewLogger(cfg *config.Config, service, version string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.App.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}

// Build connects to the stores and assembles the services. The caller must
// call Close.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Registry: resilience.NewRegistry()}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)

	if err := database.Migrate(ctx, pool); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Msg("database connected")

	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() { _ = a.Redis.Close() })
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis image cache enabled")
	}

	dietRepo := diet.NewPostgresRepository(pool)
	a.Users = user.NewService(user.ServiceConfig{
		Repository: user.NewPostgresRepository(pool),
		Logger:     log,
	})

	persister := diet.NewPersister(diet.PersisterConfig{
		Repository: dietRepo,
		MaxRetries: uint64(max(cfg.Diet.PersistRetries, 0)),
		Location:   cfg.Location(),
		Logger:     log,
	})

	enricher, err := a.buildImagery(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	metrics, err := diet.NewMetrics()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating diet metrics: %w", err)
	}

	var calcOpts []nutrition.Option
	if !cfg.Diet.CalorieVariation {
		calcOpts = append(calcOpts, nutrition.WithoutVariation())
	}

	a.Diet = diet.NewService(diet.ServiceConfig{
		Profiles:   a.Users,
		Calculator: nutrition.NewCalculator(calcOpts...),
		Requester:  a.buildRequester(cfg, log),
		Validator: diet.NewValidator(diet.ValidatorConfig{
			MaxCorrections: cfg.Diet.MaxCorrections,
			Logger:         log,
		}),
		Persister:    persister,
		Repository:   dietRepo,
		Enricher:     enricher,
		MaxAttempts:  cfg.Diet.MaxAttempts,
		MaxFavorites: cfg.Diet.MaxFavorites,
		Metrics:      metrics,
		Logger:       log,
	})
	a.Tracker = diet.NewTracker(diet.TrackerConfig{
		Persister:  persister,
		Repository: dietRepo,
		Location:   cfg.Location(),
		Logger:     log,
	})

	return a, nil
}

// Subsystems returns the readiness checks for the connected stores.
func (a *App) Subsystems() map[string]Pinger {
	subsystems := map[string]Pinger{
		"postgres": a.Pool.Ping,
	}
	if a.Redis != nil {
		subsystems["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	}
	return subsystems
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) buildRequester(cfg *config.Config, log zerolog.Logger) diet.PlanRequester {
	httpCfg := resilience.DefaultClientConfig(dietopenai.ProviderName)
	httpCfg.Timeout = cfg.OpenAI.RequestTimeout
	httpCfg.MaxRetries = cfg.OpenAI.MaxRetries
	if cfg.OpenAI.InitialInterval > 0 {
		httpCfg.InitialInterval = cfg.OpenAI.InitialInterval
	}
	httpCfg.Registry = a.Registry

	var limiter *rate.Limiter
	if cfg.OpenAI.RequestsPerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.OpenAI.RequestsPerMin)/60), 1)
	}

	return dietopenai.NewClient(dietopenai.ClientConfig{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		Model:      cfg.OpenAI.ChatModel,
		Timeout:    cfg.OpenAI.RequestTimeout,
		Limiter:    limiter,
		HTTPClient: resilience.NewClient(httpCfg),
		Logger:     log,
	})
}

// buildImagery returns nil when image enrichment is disabled.
func (a *App) buildImagery(cfg *config.Config, log zerolog.Logger) (diet.ImageEnricher, error) {
	if !cfg.Images.Enabled {
		return nil, nil
	}

	store, err := s3store.New(s3store.Config{
		Bucket:        cfg.Images.Bucket,
		Region:        cfg.Images.Region,
		Endpoint:      cfg.Images.Endpoint,
		PublicBaseURL: cfg.Images.PublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating image store: %w", err)
	}

	var cache imagery.Cache = imagery.NewMemoryCache(imagery.DefaultCacheTTL)
	if a.Redis != nil {
		shared := imagery.NewRedisCache(a.Redis, "nutriplan:img:", cfg.Redis.TTL)
		cache = imagery.NewTieredCache(cache, shared, log)
	}

	svc := imagery.NewService(imagery.Config{
		Curated: imagery.DefaultCurated(cfg.Images.PublicBaseURL),
		Cache:   cache,
		Generator: imageopenai.NewGenerator(imageopenai.GeneratorConfig{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      cfg.OpenAI.ImageModel,
			HTTPClient: resilience.NewClient(imageopenai.ClientConfig(cfg.Images.RequestTimeout)),
			Logger:     log,
		}),
		Store: store,
		Fallback: imagery.Image{
			URL:          cfg.Images.FallbackURL,
			ThumbnailURL: cfg.Images.FallbackThumbURL,
		},
		FailureThreshold: cfg.Images.FailureThreshold,
		OpenTimeout:      cfg.Images.OpenTimeout,
		Registry:         a.Registry,
		Logger:           log,
	})
	log.Info().Str("bucket", cfg.Images.Bucket).Msg("food image enrichment enabled")
	return svc, nil
}
