package gating

import (
	"context"
	"net/http"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/merchant"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
)

type subscriptionKey struct{}

// SubscriptionFromContext returns the active subscription the middleware admitted the request with.
func SubscriptionFromContext(ctx context.Context) (*subscription.Details, bool) {
	sub, ok := ctx.Value(subscriptionKey{}).(*subscription.Details)
	return sub, ok && sub != nil
}

// Middleware enforces gating on every request it wraps.
// The shop is taken from the request context when merchant.Middleware ran
// first, otherwise from resolve. Denied requests get a 302 to the decision's
// redirect target; requests without a shop get 401.
func Middleware(e *Engine, resolve merchant.Resolver) func(http.Handler) http.Handler {
	if e == nil {
		panic("gating: Engine is required")
	}
	if resolve == nil {
		resolve = merchant.NewHeaderResolver("")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			shop, ok := merchant.FromContext(ctx)
			if !ok {
				var err error
				shop, err = resolve(r)
				if err != nil || shop == "" {
					http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
					return
				}
				ctx = merchant.WithShop(ctx, shop)
			}

			d := e.Evaluate(ctx, shop, r.URL.Path)
			if !d.Allow {
				http.Redirect(w, r, d.RedirectTo, http.StatusFound)
				return
			}
			if d.Subscription != nil {
				ctx = context.WithValue(ctx, subscriptionKey{}, d.Subscription)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
