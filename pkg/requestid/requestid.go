package requestid

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

const (
	// Header carries the request id in both directions.
	Header = "X-Request-ID"
	// WebhookHeader is Shopify's per-delivery id; reused so retries of one
	// webhook share a correlation id.
	WebhookHeader = "X-Shopify-Webhook-Id"

	maxLength = 128
)

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type contextKey struct{}

func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the request id, or "" when none is set.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Middleware assigns every request an id, taken from Header or WebhookHeader
// when valid and generated otherwise, and echoes it in the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := pick(r.Header.Get(Header), r.Header.Get(WebhookHeader))
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
	})
}

func pick(candidates ...string) string {
	for _, c := range candidates {
		if c != "" && len(c) <= maxLength && validID.MatchString(c) {
			return c
		}
	}
	return uuid.NewString()
}

// LoggerExtractor adds "request_id" to log records.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := FromContext(ctx); id != "" {
			return slog.String("request_id", id), true
		}
		return slog.Attr{}, false
	}
}
