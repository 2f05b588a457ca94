package middleware

import (
	"context"
	"net/http"

	"golang.org/x/text/language"
)

type localeKey struct{}

// Locale resolves the response language for each request. A locale claim
// on the access token wins; otherwise Accept-Language is matched against
// supported, whose first entry is the fallback.
func Locale(supported ...string) func(http.Handler) http.Handler {
	tags := make([]language.Tag, 0, len(supported))
	for _, s := range supported {
		tags = append(tags, language.Make(s))
	}
	if len(tags) == 0 {
		tags = append(tags, language.BrazilianPortuguese)
	}
	matcher := language.NewMatcher(tags)
	fallback := tags[0].String()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := fallback
			if claimed, ok := r.Context().Value(tokenLocaleKey{}).(string); ok && claimed != "" {
				locale = claimed
			} else if header := r.Header.Get("Accept-Language"); header != "" {
				_, index, confidence := matcher.Match(parseAcceptLanguage(header)...)
				if confidence != language.No {
					locale = tags[index].String()
				}
			}

			w.Header().Set("Content-Language", locale)
			ctx := context.WithValue(r.Context(), localeKey{}, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseAcceptLanguage(header string) []language.Tag {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return nil
	}
	return tags
}

// GetLocale returns the resolved locale, falling back to the token claim
// when the Locale middleware has not run.
func GetLocale(ctx context.Context) string {
	if l, ok := ctx.Value(localeKey{}).(string); ok {
		return l
	}
	if l, ok := ctx.Value(tokenLocaleKey{}).(string); ok {
		return l
	}
	return ""
}
