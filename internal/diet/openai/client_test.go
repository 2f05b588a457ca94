package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/diet/openai"
	"github.com/nutriplan/nutriplan/internal/provider/resilience"
)

const planJSON = `{"meals":[{"name":"Café da manhã","time":"07:00","foods":[{"name":"Ovos mexidos","portion":"3 unidades","calories":210,"protein":"18g","carbs":2,"fat":15}]}]}`

func completion(content string) map[string]interface{} {
	return map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	}
}

func fastHTTP(name string) *resilience.Client {
	cb := resilience.DefaultCircuitBreakerConfig(name)
	cb.ReadyToTrip = resilience.ConsecutiveFailures(100)
	return resilience.NewClient(resilience.ClientConfig{
		Name:            name,
		Timeout:         5 * time.Second,
		MaxRetries:      1,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		CircuitBreaker:  &cb,
	})
}

func newClient(t *testing.T, url string, timeout time.Duration) *openai.Client {
	t.Helper()
	return openai.NewClient(openai.ClientConfig{
		APIKey:     "sk-test",
		BaseURL:    url,
		Model:      "test-model",
		Timeout:    timeout,
		HTTPClient: fastHTTP(t.Name()),
	})
}

var prompt = diet.Prompt{System: "system text", User: "user text"}

func TestClient_RequestPlan(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])
		assert.Equal(t, 0.1, body["temperature"])
		assert.Equal(t, float64(2000), body["max_tokens"])
		assert.Equal(t, map[string]interface{}{"type": "json_object"}, body["response_format"])

		messages := body["messages"].([]interface{})
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
		assert.Equal(t, "user text", messages[1].(map[string]interface{})["content"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion(planJSON))
	}))
	defer server.Close()

	plan, err := newClient(t, server.URL, time.Second).RequestPlan(context.Background(), prompt)
	require.NoError(t, err)
	require.Len(t, plan.Meals, 1)
	assert.Equal(t, "Café da manhã", plan.Meals[0].Name)
	require.Len(t, plan.Meals[0].Foods, 1)
	assert.Equal(t, diet.Number(18), *plan.Meals[0].Foods[0].Protein)
}

func TestClient_RequestPlan_ObjectWrappedInProse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(completion("Claro! Aqui está:\n```json\n" + planJSON + "\n```"))
	}))
	defer server.Close()

	plan, err := newClient(t, server.URL, time.Second).RequestPlan(context.Background(), prompt)
	require.NoError(t, err)
	assert.Len(t, plan.Meals, 1)
}

func TestClient_RequestPlan_Malformed(t *testing.T) {
	tests := map[string]string{
		"no object":      "Desculpe, não posso ajudar.",
		"missing meals":  `{"plan":"none"}`,
		"empty content":  "  ",
		"truncated json": `{"meals":[{"name":"Almoço"`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(completion(content))
			}))
			defer server.Close()

			_, err := newClient(t, server.URL, time.Second).RequestPlan(context.Background(), prompt)
			assert.ErrorIs(t, err, diet.ErrMalformedResponse)
		})
	}
}

func TestClient_RequestPlan_RateLimited(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newClient(t, server.URL, time.Second).RequestPlan(context.Background(), prompt)
	require.ErrorIs(t, err, diet.ErrRateLimited)

	var rl *diet.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 12*time.Second, rl.RetryAfter)
	assert.Equal(t, int32(1), calls.Load(), "429 is not retried")
}

func TestClient_RequestPlan_RateLimitedHTTPDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newClient(t, server.URL, time.Second).RequestPlan(context.Background(), prompt)

	var rl *diet.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.InDelta(t, time.Hour.Seconds(), rl.RetryAfter.Seconds(), 5)
}

func TestClient_RequestPlan_ServiceUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newClient(t, server.URL, time.Second).RequestPlan(context.Background(), prompt)
	assert.ErrorIs(t, err, diet.ErrServiceUnavailable)
	assert.Equal(t, int32(2), calls.Load(), "one transport retry")
}

func TestClient_RequestPlan_CircuitOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer server.Close()

	cb := resilience.DefaultCircuitBreakerConfig("open")
	cb.ReadyToTrip = resilience.ConsecutiveFailures(1)
	client := openai.NewClient(openai.ClientConfig{
		BaseURL: server.URL,
		HTTPClient: resilience.NewClient(resilience.ClientConfig{
			Name:            "open",
			MaxRetries:      1,
			InitialInterval: 5 * time.Millisecond,
			CircuitBreaker:  &cb,
		}),
	})

	_, err := client.RequestPlan(context.Background(), prompt)
	require.ErrorIs(t, err, diet.ErrServiceUnavailable)

	_, err = client.RequestPlan(context.Background(), prompt)
	assert.ErrorIs(t, err, diet.ErrServiceUnavailable)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestClient_RequestPlan_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	_, err := newClient(t, server.URL, 50*time.Millisecond).RequestPlan(context.Background(), prompt)
	assert.ErrorIs(t, err, diet.ErrTimeout)
	assert.NotErrorIs(t, err, diet.ErrCanceled)
}

func TestClient_RequestPlan_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := newClient(t, server.URL, time.Second).RequestPlan(ctx, prompt)
	assert.ErrorIs(t, err, diet.ErrCanceled)
}

func TestClient_RequestPlan_LimiterHonoursCancellation(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow(), "drain the bucket")

	client := openai.NewClient(openai.ClientConfig{
		BaseURL:    "http://127.0.0.1:0",
		Limiter:    limiter,
		HTTPClient: fastHTTP("limiter"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.RequestPlan(ctx, prompt)
	assert.ErrorIs(t, err, diet.ErrCanceled)
}

func TestClient_Name(t *testing.T) {
	assert.Equal(t, openai.ProviderName, openai.NewClient(openai.ClientConfig{}).Name())
}
