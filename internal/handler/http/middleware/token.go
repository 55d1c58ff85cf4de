package middleware

import (
	"context"
	"net/http"
)

type queryTokenKey struct{}

const redactedToken = "REDACTED"

// RedactQueryToken moves the token query parameter into the request context
// and masks it in the URL, so loggers further down the chain never see it.
// Handlers read it back with QueryToken.
func RedactQueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		token := query.Get("token")
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		query.Set("token", redactedToken)
		redacted := r.Clone(context.WithValue(r.Context(), queryTokenKey{}, token))
		redacted.URL.RawQuery = query.Encode()
		redacted.RequestURI = redacted.URL.RequestURI()

		next.ServeHTTP(w, redacted)
	})
}

// QueryToken returns the token taken out by RedactQueryToken, or the raw
// query value when the middleware did not run.
func QueryToken(r *http.Request) string {
	if token, ok := r.Context().Value(queryTokenKey{}).(string); ok {
		return token
	}
	return r.URL.Query().Get("token")
}
