package openai_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriplan/nutriplan/internal/imagery/openai"
	"github.com/nutriplan/nutriplan/internal/provider/resilience"
)

func TestGenerator_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "b64_json", body["response_format"])
		assert.Equal(t, "standard", body["quality"])
		assert.Equal(t, float64(1), body["n"])
		assert.Equal(t, "a bowl of rice", body["prompt"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString([]byte("\x89PNG"))}},
		})
	}))
	defer server.Close()

	gen := openai.NewGenerator(openai.GeneratorConfig{
		APIKey:     "sk-test",
		BaseURL:    server.URL,
		HTTPClient: resilience.NewClient(resilience.DefaultClientConfig("test")),
	})

	data, err := gen.Generate(context.Background(), "a bowl of rice")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data)
}

func TestGenerator_EmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	gen := openai.NewGenerator(openai.GeneratorConfig{BaseURL: server.URL})

	_, err := gen.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, openai.ErrEmptyImage)
}

func TestGenerator_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	gen := openai.NewGenerator(openai.GeneratorConfig{BaseURL: server.URL})

	_, err := gen.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestClientConfig(t *testing.T) {
	cfg := openai.ClientConfig(0)
	assert.Equal(t, openai.ProviderName, cfg.Name)
	assert.Equal(t, openai.DefaultRequestTimeout, cfg.Timeout)
	assert.Equal(t, uint64(1), cfg.MaxRetries)
	assert.True(t, cfg.DisableCircuitBreaker)
	assert.Nil(t, cfg.Registry)

	assert.Equal(t, 15*time.Second, openai.ClientConfig(15*time.Second).Timeout)
}

func TestGenerator_FailuresDoNotOpenClientBreaker(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := openai.ClientConfig(time.Second)
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	gen := openai.NewGenerator(openai.GeneratorConfig{
		BaseURL:    server.URL,
		HTTPClient: resilience.NewClient(cfg),
	})

	for i := 0; i < 4; i++ {
		_, err := gen.Generate(context.Background(), "x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, resilience.ErrCircuitOpen)
	}
	// One retry per call, every attempt reaches the server.
	assert.Equal(t, int32(8), requests.Load())
}
