// Package openai generates food pictures with the OpenAI images endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nutriplan/nutriplan/internal/imagery"
	"github.com/nutriplan/nutriplan/internal/provider/resilience"
)

const (
	// ProviderName identifies this image provider.
	ProviderName = "openai-images"

	// DefaultBaseURL is the OpenAI API base URL.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the image model used when none is configured.
	DefaultModel = "dall-e-3"

	// DefaultSize is the generated image size.
	DefaultSize = "1024x1024"

	// DefaultRequestTimeout bounds one image request.
	DefaultRequestTimeout = 30 * time.Second
)

// ErrEmptyImage is returned when the API answers without image data.
var ErrEmptyImage = errors.New("image response contained no data")

// GeneratorConfig holds configuration for the image generator.
type GeneratorConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to OpenAI).
	BaseURL string

	// Model is the image model name.
	Model string

	// Size is the requested image size.
	Size string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for generator operations.
	Logger zerolog.Logger
}

// Generator calls the images endpoint and returns decoded PNG bytes.
type Generator struct {
	apiKey     string
	baseURL    string
	model      string
	size       string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// ClientConfig returns the HTTP client settings for image requests: one
// retry and no breaker of its own. The imagery service's Guard owns the
// failure policy for this provider.
func ClientConfig(timeout time.Duration) resilience.ClientConfig {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	cfg := resilience.DefaultClientConfig(ProviderName)
	cfg.Timeout = timeout
	cfg.MaxRetries = 1
	cfg.CircuitBreaker = nil
	cfg.DisableCircuitBreaker = true
	return cfg
}

// NewGenerator creates a new image generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	size := cfg.Size
	if size == "" {
		size = DefaultSize
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(ClientConfig(DefaultRequestTimeout))
	}

	return &Generator{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		size:       size,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (g *Generator) Name() string {
	return ProviderName
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	Quality        string `json:"quality"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Generate requests one standard-quality image for prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(imageRequest{
		Model:          g.model,
		Prompt:         prompt,
		N:              1,
		Size:           g.size,
		Quality:        "standard",
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var out imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Data) == 0 || out.Data[0].B64JSON == "" {
		return nil, ErrEmptyImage
	}

	data, err := base64.StdEncoding.DecodeString(out.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decoding image data: %w", err)
	}
	g.logger.Debug().Int("bytes", len(data)).Msg("image generated")
	return data, nil
}

var _ imagery.Generator = (*Generator)(nil)
