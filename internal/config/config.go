// Package config loads service configuration from an optional YAML file and
// NUTRIPLAN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // daily rollover needs zone data in slim images

	"github.com/spf13/viper"

	"github.com/nutriplan/nutriplan/internal/database"
	"github.com/nutriplan/nutriplan/internal/telemetry"
)

// EnvPrefix is prepended to every environment override, so diet.max_attempts
// is read from NUTRIPLAN_DIET_MAX_ATTEMPTS.
const EnvPrefix = "NUTRIPLAN"

// Config is the full service configuration.
type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Server    ServerConfig     `mapstructure:"server"`
	Database  database.Config  `mapstructure:"database"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Auth      AuthConfig       `mapstructure:"auth"`
	OpenAI    OpenAIConfig     `mapstructure:"openai"`
	Diet      DietConfig       `mapstructure:"diet"`
	Images    ImagesConfig     `mapstructure:"images"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Environment   string `mapstructure:"environment"`
	LogLevel      string `mapstructure:"log_level"`
	DefaultLocale string `mapstructure:"default_locale"`
	Timezone      string `mapstructure:"timezone"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeout         time.Duration `mapstructure:"read_timeout"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	IdleTimeout         time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitPerMin     int           `mapstructure:"rate_limit_per_min"`
	GenerateLimitPerMin int           `mapstructure:"generate_limit_per_min"`
	RequireTLS          bool          `mapstructure:"require_tls"`
}

// RedisConfig configures the shared image cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	Issuer        string `mapstructure:"issuer"`
	Audience      string `mapstructure:"audience"`
}

// OpenAIConfig configures the chat and image models.
type OpenAIConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	ChatModel       string        `mapstructure:"chat_model"`
	ImageModel      string        `mapstructure:"image_model"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RequestsPerMin  int           `mapstructure:"requests_per_min"`
	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
}

// DietConfig tunes the generation pipeline.
type DietConfig struct {
	MaxAttempts      int  `mapstructure:"max_attempts"`
	MaxCorrections   int  `mapstructure:"max_corrections"`
	MaxFavorites     int  `mapstructure:"max_favorites"`
	PersistRetries   int  `mapstructure:"persist_retries"`
	CalorieVariation bool `mapstructure:"calorie_variation"`
}

// ImagesConfig configures food image enrichment.
type ImagesConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Bucket           string        `mapstructure:"bucket"`
	Region           string        `mapstructure:"region"`
	Endpoint         string        `mapstructure:"endpoint"`
	PublicBaseURL    string        `mapstructure:"public_base_url"`
	FallbackURL      string        `mapstructure:"fallback_url"`
	FallbackThumbURL string        `mapstructure:"fallback_thumbnail_url"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// PubSubConfig configures the async job queue.
type PubSubConfig struct {
	ProjectID      string        `mapstructure:"project_id"`
	Topic          string        `mapstructure:"topic"`
	Subscription   string        `mapstructure:"subscription"`
	MaxOutstanding int           `mapstructure:"max_outstanding"`
	JobTimeout     time.Duration `mapstructure:"job_timeout"`
}

// Load reads configPath (if non-empty) or config.yaml from the usual places,
// applies environment overrides and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/nutriplan")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.default_locale", "pt-BR")
	v.SetDefault("app.timezone", "America/Sao_Paulo")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "200s") // generation may take up to 180s
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit_per_min", 120)
	v.SetDefault("server.generate_limit_per_min", 5)
	v.SetDefault("server.require_tls", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "nutriplan")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "nutriplan")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "720h")

	v.SetDefault("auth.jwt_signing_key", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.chat_model", "gpt-4o-mini")
	v.SetDefault("openai.image_model", "dall-e-3")
	v.SetDefault("openai.request_timeout", "180s")
	v.SetDefault("openai.requests_per_min", 60)
	v.SetDefault("openai.max_retries", 3)
	v.SetDefault("openai.initial_interval", "1s")

	v.SetDefault("diet.max_attempts", 3)
	v.SetDefault("diet.max_corrections", 2)
	v.SetDefault("diet.max_favorites", 3)
	v.SetDefault("diet.persist_retries", 3)
	v.SetDefault("diet.calorie_variation", true)

	v.SetDefault("images.enabled", false)
	v.SetDefault("images.bucket", "")
	v.SetDefault("images.region", "us-east-1")
	v.SetDefault("images.endpoint", "")
	v.SetDefault("images.public_base_url", "")
	v.SetDefault("images.fallback_url", "https://static.nutriplan.app/food/placeholder.png")
	v.SetDefault("images.fallback_thumbnail_url", "https://static.nutriplan.app/food/thumbnails/placeholder.png")
	v.SetDefault("images.failure_threshold", 5)
	v.SetDefault("images.open_timeout", "60s")
	v.SetDefault("images.request_timeout", "30s")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "diet-jobs")
	v.SetDefault("pubsub.subscription", "diet-jobs-worker")
	v.SetDefault("pubsub.max_outstanding", 4)
	v.SetDefault("pubsub.job_timeout", "240s")

	v.SetDefault("telemetry.service_name", "nutriplan")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.enabled", false)
}

// Validate checks values that have no safe default.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server.port must be between 1 and 65535"))
	}
	if c.Diet.MaxAttempts < 1 {
		errs = append(errs, errors.New("diet.max_attempts must be at least 1"))
	}
	if c.Diet.MaxCorrections < 0 {
		errs = append(errs, errors.New("diet.max_corrections must not be negative"))
	}
	if c.IsProduction() {
		if c.Auth.JWTSigningKey == "" {
			errs = append(errs, errors.New("auth.jwt_signing_key is required in production"))
		}
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("openai.api_key is required in production"))
		}
	}
	if c.Images.Enabled && c.Images.Bucket == "" {
		errs = append(errs, errors.New("images.bucket is required when images are enabled"))
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("app.timezone: %w", err))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Location returns the timezone used for daily rollover.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
