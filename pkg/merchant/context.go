package merchant

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey struct{}

// WithShop stores the resolved shop domain in ctx.
func WithShop(ctx context.Context, shop string) context.Context {
	return context.WithValue(ctx, contextKey{}, shop)
}

// FromContext returns the shop domain stored by WithShop.
func FromContext(ctx context.Context) (string, bool) {
	shop, ok := ctx.Value(contextKey{}).(string)
	return shop, ok && shop != ""
}

// LoggerExtractor enriches log records with the shop domain.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if shop, ok := FromContext(ctx); ok {
			return slog.String("shop", shop), true
		}
		return slog.Attr{}, false
	}
}

// Middleware resolves the shop and stores it in the request context.
// Missing identity yields 401, malformed identity 400.
func Middleware(resolve Resolver) func(http.Handler) http.Handler {
	if resolve == nil {
		resolve = NewHeaderResolver("")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			shop, err := resolve(r)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return
			}
			if shop == "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithShop(r.Context(), shop)))
		})
	}
}
