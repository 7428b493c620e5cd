package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/billing"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/gating"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/httpserver"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/merchant"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/requestid"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
	billingsvc "github.com/Lleewss/Biypod-merchant-v2/svc/billing"
)

// Billing is the orchestration the billing routes call into.
type Billing interface {
	Catalog() *plan.Catalog
	SelectPlan(ctx context.Context, req billingsvc.SelectPlanRequest) (*billingsvc.SelectPlanResult, error)
	ConfirmCharge(ctx context.Context, shop, chargeID string) (*subscription.Details, error)
	ApplyProviderStatus(ctx context.Context, chargeID string, status billing.ChargeStatus) error
	RecordOrderUsage(ctx context.Context, o billingsvc.OrderUsage) (*billingsvc.UsageResult, error)
	HandleUninstall(ctx context.Context, shop string) error
}

// Subscriptions is the read and product side of the subscription store.
type Subscriptions interface {
	Summary(ctx context.Context, merchantID string) (subscription.Summary, error)
	CanPublishProduct(ctx context.Context, merchantID string) (subscription.PublishCheck, error)
	PublishProduct(ctx context.Context, merchantID, productRef string) (*subscription.PublishedProduct, error)
	UnpublishProduct(ctx context.Context, merchantID, productRef string) error
}

// Config holds the URLs the router hands out.
type Config struct {
	// AppURL is the public origin of the app, used to build the billing return URL.
	// When empty the origin is taken from the request.
	AppURL        string `env:"APP_URL"`
	WebhookSecret string `env:"SHOPIFY_API_SECRET"`
	// AllowShopQuery also accepts the shop from the ?shop= parameter. Only for
	// deployments where an upstream proxy has already authenticated the request.
	AllowShopQuery bool `env:"ALLOW_SHOP_QUERY" envDefault:"false"`
}

// Options wires the router's collaborators. Billing, Subscriptions and Gating are required.
type Options struct {
	Config        Config
	Billing       Billing
	Subscriptions Subscriptions
	Gating        *gating.Engine
	Verifier      WebhookVerifier // defaults to HMAC with Config.WebhookSecret
	Resolver      merchant.Resolver
	Metrics       http.Handler
	Checks        []httpserver.Check
	Logger        *slog.Logger
}

type handler struct {
	cfg      Config
	billing  Billing
	subs     Subscriptions
	gating   *gating.Engine
	verifier WebhookVerifier
	log      *slog.Logger
}

// NewRouter builds the HTTP surface. Panics if a required collaborator is missing.
func NewRouter(opts Options) chi.Router {
	if opts.Billing == nil || opts.Subscriptions == nil || opts.Gating == nil {
		panic("api: Billing, Subscriptions and Gating are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Resolver == nil {
		opts.Resolver = merchant.NewHeaderResolver("")
		if opts.Config.AllowShopQuery {
			opts.Resolver = merchant.NewCompositeResolver(opts.Resolver, merchant.NewQueryResolver(""))
		}
	}
	if opts.Verifier == nil {
		opts.Verifier = NewHMACVerifier(opts.Config.WebhookSecret)
	}

	h := &handler{
		cfg:      opts.Config,
		billing:  opts.Billing,
		subs:     opts.Subscriptions,
		gating:   opts.Gating,
		verifier: opts.Verifier,
		log:      opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(accessLog(opts.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", httpserver.Health(opts.Logger, 0))
	r.Get("/ready", httpserver.Health(opts.Logger, 2*time.Second, opts.Checks...))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/billing", func(r chi.Router) {
		r.Post("/webhook", h.webhook)

		r.Group(func(r chi.Router) {
			r.Use(merchant.Middleware(opts.Resolver))
			r.Get("/plans", h.listPlans)
			r.Post("/plans", h.selectPlan)
			r.Get("/callback", h.callback)
		})
	})

	r.Route("/app", func(r chi.Router) {
		r.Use(merchant.Middleware(opts.Resolver))
		r.Use(gating.Middleware(opts.Gating, opts.Resolver))
		r.Get("/status", h.status)
		r.Get("/products/check", h.checkPublish)
		r.Post("/products", h.publish)
		r.Delete("/products/{ref}", h.unpublish)
		r.Get("/features/{feature}", h.feature)
	})

	return r
}

// returnURL is where Shopify sends the merchant after the approval screen.
func (h *handler) returnURL(r *http.Request) string {
	base := strings.TrimRight(h.cfg.AppURL, "/")
	if base == "" {
		scheme := "https"
		if r.TLS == nil && !strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			scheme = "http"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/billing/callback"
}

func accessLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.InfoContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
