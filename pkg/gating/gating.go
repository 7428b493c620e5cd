package gating

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
)

// DefaultPlanSelectionPath is where denied merchants are sent.
const DefaultPlanSelectionPath = "/billing/plans"

// DefaultAllowList holds the billing and auth pages that never require a subscription.
var DefaultAllowList = []string{
	"/billing/plans",
	"/billing/callback",
	"/billing/webhook",
	"/auth/login",
	"/auth/callback",
}

// Reason explains a decision.
type Reason string

const (
	ReasonAllowListed    Reason = "allow_listed"
	ReasonActive         Reason = "active"
	ReasonNoSubscription Reason = "no_subscription"
	ReasonPending        Reason = "pending"
	ReasonExpired        Reason = "expired"
	ReasonCheckFailed    Reason = "check_failed"
)

// Decision is the outcome of one gating evaluation.
type Decision struct {
	Allow      bool
	RedirectTo string
	Reason     Reason
	// Subscription is the row the decision was based on, nil when none was looked up or found.
	Subscription *subscription.Details
}

// SubscriptionReader is the part of the subscription store the engine reads.
// GetLatest is only consulted when the merchant has no open subscription, to
// tell a lapsed merchant from a new one.
type SubscriptionReader interface {
	GetActive(ctx context.Context, merchantID string) (*subscription.Details, error)
	GetLatest(ctx context.Context, merchantID string) (*subscription.Details, error)
}

// Engine decides whether a merchant may reach a path.
// It keeps no state between calls; every evaluation reads the store.
type Engine struct {
	subs      SubscriptionReader
	allowList []string
	planPath  string
	log       *slog.Logger
	metrics   *metrics
}

// NewEngine creates a gating engine. Panics if subs is nil.
func NewEngine(subs SubscriptionReader, opts ...Option) *Engine {
	if subs == nil {
		panic("gating: SubscriptionReader is required")
	}
	e := &Engine{
		subs:      subs,
		allowList: DefaultAllowList,
		planPath:  DefaultPlanSelectionPath,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = newMetrics(nil)
	}
	return e
}

// Evaluate decides access for merchantID at path.
// Store failures never escape: they deny with ReasonCheckFailed.
func (e *Engine) Evaluate(ctx context.Context, merchantID, path string) Decision {
	d := e.evaluate(ctx, merchantID, path)
	e.metrics.observe(d)
	return d
}

func (e *Engine) evaluate(ctx context.Context, merchantID, path string) Decision {
	if e.IsAllowListed(path) {
		return Decision{Allow: true, Reason: ReasonAllowListed}
	}

	sub, err := e.subs.GetActive(ctx, merchantID)
	if errors.Is(err, subscription.ErrNotFound) {
		sub, err = e.subs.GetLatest(ctx, merchantID)
		if errors.Is(err, subscription.ErrNotFound) {
			return e.deny(ReasonNoSubscription, nil, "", "")
		}
	}
	if err != nil {
		e.log.ErrorContext(ctx, "plan gating check failed",
			slog.String("shop", merchantID),
			slog.String("path", path),
			slog.Any("error", err),
		)
		return e.deny(ReasonCheckFailed, nil, "error", "check_failed")
	}

	switch {
	case sub.Status == subscription.StatusActive:
		return Decision{Allow: true, Reason: ReasonActive, Subscription: sub}
	case sub.Status == subscription.StatusPending:
		return e.deny(ReasonPending, sub, "status", "pending")
	case sub.Status.IsTerminal():
		return e.deny(ReasonExpired, sub, "status", "expired")
	default:
		e.log.WarnContext(ctx, "unknown subscription status",
			slog.String("shop", merchantID),
			slog.String("status", string(sub.Status)),
		)
		return e.deny(ReasonCheckFailed, sub, "error", "check_failed")
	}
}

func (e *Engine) deny(reason Reason, sub *subscription.Details, key, value string) Decision {
	target := e.planPath
	if key != "" {
		target += "?" + url.Values{key: {value}}.Encode()
	}
	return Decision{Allow: false, RedirectTo: target, Reason: reason, Subscription: sub}
}

// IsAllowListed reports whether path is an allow-list entry or lies beneath one.
// Matching stops at segment boundaries, so /billing/plans-old is not covered
// by /billing/plans.
func (e *Engine) IsAllowListed(path string) bool {
	for _, prefix := range e.allowList {
		if path == prefix {
			return true
		}
		if strings.HasPrefix(path, prefix) {
			switch path[len(prefix)] {
			case '/', '?':
				return true
			}
		}
	}
	return false
}
