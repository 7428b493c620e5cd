// Package api is the app's HTTP surface: plan selection, the billing
// callback, provider webhooks and the plan-gated /app routes.
//
// Merchant identity is resolved from the X-Shopify-Shop-Domain header (or the
// shop query parameter) set by the session layer in front of this router.
// Everything under /app passes through gating.Middleware.
package api
