// Package gating decides whether a merchant may use the app.
//
// # Evaluation
//
// Engine.Evaluate runs on every gated request and reads the subscription
// store each time, so a plan change takes effect on the next request:
//
//	allow-listed path      -> allow, no lookup
//	no subscription        -> /billing/plans
//	pending                -> /billing/plans?status=pending
//	cancelled or expired   -> /billing/plans?status=expired
//	active                 -> allow
//	store failure          -> /billing/plans?error=check_failed
//
// Store failures are logged and turned into a deny; they are never returned.
// Allow-list entries match whole path segments: "/billing/plans" admits
// "/billing/plans/compare" but not "/billing/plansx".
//
// # Middleware
//
// Middleware is the one HTTP entry point for this check. It resolves the shop,
// evaluates the path and either redirects with 302 or passes the request on
// with the admitting subscription in the context:
//
//	engine := gating.NewEngine(store,
//		gating.WithRegisterer(reg),
//		gating.WithLogger(log),
//	)
//
//	r.Route("/app", func(r chi.Router) {
//		r.Use(gating.Middleware(engine, merchant.NewHeaderResolver("")))
//		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
//			sub, _ := gating.SubscriptionFromContext(r.Context())
//			// sub.Status is active here
//		})
//	})
//
// WithAllowList replaces DefaultAllowList and WithPlanSelectionPath changes
// where denied merchants are sent.
//
// # Features
//
// CheckFeatureAccess is a finer policy over an active subscription:
//
//	FeatureProductPublishing      every tier
//	FeatureAdvancedCustomization  Starter and up
//	FeatureAnalytics              Starter and up
//	FeatureBulkOperations         Creator only
//
// Without an active subscription, for unknown features and on lookup failures
// access is denied; the result names the plan that would unlock the feature.
//
// # Metrics
//
// Decisions are counted in biypod_gating_decisions_total{outcome,reason}.
package gating
