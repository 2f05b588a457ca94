package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sort"
	"strconv"

	"github.com/nutriplan/nutriplan/internal/api/models"
	"github.com/nutriplan/nutriplan/internal/api/response"
	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/user"
)

// writeError maps service errors to Problem responses. The detail is the
// localized user message. Nothing is written for a canceled request, since
// nobody is listening.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, diet.ErrCanceled) ||
		(errors.Is(err, context.Canceled) && r.Context().Err() != nil) {
		return
	}

	msg := diet.UserMessage(err, localeOf(r))

	var (
		rateLimit  *diet.RateLimitError
		validation *user.ValidationError
	)

	switch {
	case errors.As(err, &validation):
		response.BadRequest(w, r, "validation failed", fieldErrors(validation))
	case errors.Is(err, user.ErrInvalidFood), errors.Is(err, user.ErrInvalidMeal),
		errors.Is(err, diet.ErrInvalidAmount):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, diet.ErrIncompleteProfile):
		response.UnprocessableEntity(w, r, msg)
	case errors.As(err, &rateLimit):
		if rateLimit.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rateLimit.RetryAfter.Seconds()))))
		}
		response.TooManyRequests(w, r, msg)
	case errors.Is(err, diet.ErrRateLimited):
		response.TooManyRequests(w, r, msg)
	case errors.Is(err, diet.ErrServiceUnavailable), errors.Is(err, diet.ErrTimeout):
		response.ServiceUnavailable(w, r, msg)
	case errors.Is(err, diet.ErrMalformedResponse),
		errors.Is(err, diet.ErrStructuralValidation),
		errors.Is(err, diet.ErrDietIncompatible),
		errors.Is(err, diet.ErrProteinTarget):
		response.BadGateway(w, r, msg)
	case errors.Is(err, diet.ErrPersistenceConflict):
		response.Conflict(w, r, msg)
	case errors.Is(err, diet.ErrPlanNotFound), errors.Is(err, diet.ErrMealNotFound):
		response.NotFound(w, r, msg)
	case errors.Is(err, diet.ErrUserNotFound), errors.Is(err, user.ErrUserNotFound):
		response.NotFound(w, r, "user")
	default:
		response.InternalError(w, r, msg)
	}
}

func fieldErrors(v *user.ValidationError) []models.FieldError {
	names := make([]string, 0, len(v.Fields))
	for name := range v.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.FieldError, 0, len(names))
	for _, name := range names {
		out = append(out, models.FieldError{Field: name, Message: v.Fields[name]})
	}
	return out
}
