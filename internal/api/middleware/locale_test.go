package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nutriplan/nutriplan/internal/api/middleware"
)

func TestLocale_AcceptLanguage(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"no header uses fallback", "", "pt-BR"},
		{"exact match", "en", "en"},
		{"regional english", "en-GB,en;q=0.8", "en"},
		{"portuguese variant", "pt-PT", "pt-BR"},
		{"unsupported language", "ja", "pt-BR"},
		{"garbage header", ";;;", "pt-BR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := middleware.Locale("pt-BR", "en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = middleware.GetLocale(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Accept-Language", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, rec.Header().Get("Content-Language"))
		})
	}
}

func TestLocale_TokenClaimWins(t *testing.T) {
	var got string
	chain := middleware.Auth(newTestVerifier(t))(
		middleware.Locale("pt-BR", "en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = middleware.GetLocale(r.Context())
		})),
	)

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "usr_1", "en", time.Hour))
	req.Header.Set("Accept-Language", "pt-BR")
	chain.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "en", got)
}
