package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nutriplan/nutriplan/internal/api/middleware"
	"github.com/nutriplan/nutriplan/internal/diet"
)

// maxBodyBytes bounds request bodies; the largest is a favourite meal.
const maxBodyBytes = 64 << 10

// GetUserID retrieves the authenticated user ID from the context.
// This is a convenience wrapper around middleware.GetUserID.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

// localeOf returns the locale resolved for the request.
func localeOf(r *http.Request) string {
	if l := middleware.GetLocale(r.Context()); l != "" {
		return l
	}
	return diet.DefaultLocale
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
