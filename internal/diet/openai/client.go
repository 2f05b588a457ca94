// Package openai requests candidate diet plans from an OpenAI-compatible
// chat-completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/provider/resilience"
)

const (
	// ProviderName identifies this plan provider.
	ProviderName = "openai-chat"

	// DefaultBaseURL is the OpenAI API base URL.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout is the wall-clock budget for one plan request.
	DefaultTimeout = 180 * time.Second

	defaultTemperature = 0.1
	defaultMaxTokens   = 2000
	maxResponseBytes   = 4 << 20
)

// ClientConfig holds configuration for the chat client.
type ClientConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to OpenAI).
	BaseURL string

	// Model is the chat model name.
	Model string

	// Timeout bounds a single RequestPlan call, retries included.
	Timeout time.Duration

	// Limiter paces outgoing calls. Nil means unpaced.
	Limiter *rate.Limiter

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client requests diet plans from the chat-completions API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	limiter    *rate.Limiter
	httpClient *resilience.Client
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates a new chat client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		hc := resilience.DefaultClientConfig(ProviderName)
		hc.Timeout = timeout
		httpClient = resilience.NewClient(hc)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		timeout:    timeout,
		limiter:    cfg.Limiter,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
		now:        time.Now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// RequestPlan sends the prompt and decodes the first JSON object in the reply.
func (c *Client) RequestPlan(ctx context.Context, prompt diet.Prompt) (*diet.CandidatePlan, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(callCtx); err != nil {
			return nil, c.contextFailure(ctx, callCtx, err)
		}
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
		Temperature:    defaultTemperature,
		MaxTokens:      defaultMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: %w", diet.ErrServiceUnavailable, err)
		}
		if callCtx.Err() != nil {
			return nil, c.contextFailure(ctx, callCtx, err)
		}
		return nil, fmt.Errorf("%w: %w", diet.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Dur("latency", c.now().Sub(start)).
		Msg("chat completion response")

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &diet.RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now())}
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: upstream status %d", diet.ErrServiceUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if callCtx.Err() != nil {
			return nil, c.contextFailure(ctx, callCtx, err)
		}
		return nil, fmt.Errorf("%w: reading response: %w", diet.ErrServiceUnavailable, err)
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, &diet.MalformedResponseError{Reason: "undecodable completion envelope", Err: err}
	}
	if len(chat.Choices) == 0 || strings.TrimSpace(chat.Choices[0].Message.Content) == "" {
		return nil, &diet.MalformedResponseError{Reason: "empty completion"}
	}

	object, err := diet.ExtractJSONObject(chat.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return diet.ParseCandidate([]byte(object))
}

// contextFailure tells caller cancellation apart from the request budget running out.
func (c *Client) contextFailure(parent, call context.Context, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		if errors.Is(parentErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", diet.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %w", diet.ErrCanceled, err)
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: exceeded %s: %w", diet.ErrTimeout, c.timeout, err)
	}
	return fmt.Errorf("%w: %w", diet.ErrServiceUnavailable, err)
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Unparseable or past
// values yield zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}

var _ diet.PlanRequester = (*Client)(nil)
