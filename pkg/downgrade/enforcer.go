package downgrade

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
)

// GracePeriod is how long excess products stay published after a downgrade.
const GracePeriod = 5 * 24 * time.Hour

// DefaultBatchSize is how many due requests EnforceDue reads per page.
const DefaultBatchSize = 100

// Store is the subset of subscription.Store the enforcer needs.
type Store interface {
	Now() time.Time
	Catalog() *plan.Catalog
	GetActive(ctx context.Context, merchantID string) (*subscription.Details, error)
	CountActiveProducts(ctx context.Context, merchantID string) (int, error)
	DeactivateExcessProducts(ctx context.Context, merchantID string, keep int, reason subscription.UnpublishReason) (int, error)
	CreatePlanChangeRequest(ctx context.Context, req *subscription.PlanChangeRequest) error
	DuePlanChangeRequests(ctx context.Context, after *subscription.DueCursor, limit int) ([]subscription.PlanChangeRequest, error)
	ResolvePlanChangeRequest(ctx context.Context, id uuid.UUID) error
}

// Request describes a plan change to a lower tier.
type Request struct {
	MerchantID   string
	From         plan.Type
	To           plan.Type
	ContactEmail string
}

// Outcome reports what HandleDowngrade did.
// ChangeRequest is nil when the merchant was already within the new limit.
type Outcome struct {
	ActiveProducts int
	NewLimit       int
	Excess         int
	ChangeRequest  *subscription.PlanChangeRequest
}

// SweepResult summarizes one EnforceDue pass.
type SweepResult struct {
	Processed   int
	Unpublished int
	Deferred    int // requests left pending because the new plan awaits approval
	Failed      int
}

// Enforcer keeps merchants within the product limit of their plan after a downgrade.
type Enforcer struct {
	store     Store
	notifier  Notifier
	grace     time.Duration
	batchSize int
	log       *slog.Logger
}

// NewEnforcer creates an Enforcer. Panics if store is nil.
func NewEnforcer(store Store, opts ...Option) *Enforcer {
	if store == nil {
		panic("downgrade: Store is required")
	}
	e := &Enforcer{
		store:     store,
		notifier:  NopNotifier{},
		grace:     GracePeriod,
		batchSize: DefaultBatchSize,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleDowngrade checks whether the merchant's published products fit the
// lower plan. If not, it opens a grace period by recording a pending
// PlanChangeRequest and notifies the merchant. Nothing is unpublished here.
func (e *Enforcer) HandleDowngrade(ctx context.Context, req Request) (*Outcome, error) {
	if strings.TrimSpace(req.MerchantID) == "" {
		return nil, ErrMissingMerchant
	}
	if !plan.IsDowngrade(req.From, req.To) {
		return nil, ErrNotDowngrade
	}
	def, err := e.store.Catalog().Definition(req.To)
	if err != nil {
		return nil, err
	}

	count, err := e.store.CountActiveProducts(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		ActiveProducts: count,
		NewLimit:       def.ProductLimit,
		Excess:         max(0, count-def.ProductLimit),
	}
	if out.Excess == 0 {
		return out, nil
	}

	change := &subscription.PlanChangeRequest{
		MerchantID:       req.MerchantID,
		CurrentPlan:      req.From,
		RequestedPlan:    req.To,
		AffectedProducts: out.Excess,
		GracePeriodEnd:   e.store.Now().Add(e.grace),
		ContactEmail:     req.ContactEmail,
	}
	if err := e.store.CreatePlanChangeRequest(ctx, change); err != nil {
		return nil, err
	}
	out.ChangeRequest = change

	e.log.InfoContext(ctx, "downgrade grace period started",
		slog.String("shop", req.MerchantID),
		slog.String("from", string(req.From)),
		slog.String("to", string(req.To)),
		slog.Int("excess", out.Excess),
		slog.Time("grace_period_end", change.GracePeriodEnd),
	)
	if err := e.notifier.GracePeriodStarted(ctx, *change); err != nil {
		e.log.WarnContext(ctx, "grace period notification failed",
			slog.String("shop", req.MerchantID),
			slog.Any("error", err),
		)
	}
	return out, nil
}

// UnpublishExcessProducts deactivates all but the newest newLimit active
// products, oldest first. Returns how many were unpublished; a merchant
// already within the limit is left untouched and 0 is returned.
func (e *Enforcer) UnpublishExcessProducts(ctx context.Context, merchantID string, newLimit int) (int, error) {
	if newLimit < 0 {
		return 0, ErrNegativeLimit
	}
	count, err := e.store.CountActiveProducts(ctx, merchantID)
	if err != nil {
		return 0, err
	}
	if count <= newLimit {
		return 0, nil
	}

	n, err := e.store.DeactivateExcessProducts(ctx, merchantID, newLimit, subscription.UnpublishPlanDowngrade)
	if err != nil {
		return 0, err
	}
	e.log.InfoContext(ctx, "unpublished excess products",
		slog.String("shop", merchantID),
		slog.Int("limit", newLimit),
		slog.Int("unpublished", n),
	)
	return n, nil
}

// EnforceDue handles every pending plan change request whose grace period
// has ended: it unpublishes down to the applicable limit, resolves the
// request and notifies the merchant. Due requests are read in pages of the
// batch size; deferred requests stay pending and the pass pages past them.
// One failing merchant does not stop the pass; failures are counted and
// joined into the returned error.
func (e *Enforcer) EnforceDue(ctx context.Context) (SweepResult, error) {
	var (
		res   SweepResult
		errs  []error
		after *subscription.DueCursor
	)

pages:
	for {
		due, err := e.store.DuePlanChangeRequests(ctx, after, e.batchSize)
		if err != nil {
			errs = append(errs, err)
			break
		}

		for _, req := range due {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				break pages
			}
			n, done, err := e.enforce(ctx, req)
			if err != nil {
				res.Failed++
				errs = append(errs, err)
				e.log.ErrorContext(ctx, "downgrade enforcement failed",
					slog.String("shop", req.MerchantID),
					slog.String("request_id", req.ID.String()),
					slog.Any("error", err),
				)
				continue
			}
			if !done {
				res.Deferred++
				continue
			}
			res.Processed++
			res.Unpublished += n
		}

		if len(due) < e.batchSize {
			break
		}
		last := due[len(due)-1]
		after = &subscription.DueCursor{GracePeriodEnd: last.GracePeriodEnd, ID: last.ID}
	}
	return res, errors.Join(errs...)
}

func (e *Enforcer) enforce(ctx context.Context, req subscription.PlanChangeRequest) (int, bool, error) {
	limit, ok, err := e.limitFor(ctx, req)
	if err != nil || !ok {
		return 0, false, err
	}

	n, err := e.UnpublishExcessProducts(ctx, req.MerchantID, limit)
	if err != nil {
		return 0, false, err
	}
	if err := e.store.ResolvePlanChangeRequest(ctx, req.ID); err != nil {
		return n, false, err
	}

	if n > 0 {
		if err := e.notifier.ProductsUnpublished(ctx, req, n); err != nil {
			e.log.WarnContext(ctx, "unpublish notification failed",
				slog.String("shop", req.MerchantID),
				slog.Any("error", err),
			)
		}
	}
	return n, true, nil
}

// limitFor returns the limit to enforce for req.
// An active subscription's own limit wins, so a merchant who upgraded again
// during the grace period keeps their products. A pending one means the new
// charge is still awaiting approval and enforcement waits (ok is false).
// With no open subscription the requested plan's limit applies.
func (e *Enforcer) limitFor(ctx context.Context, req subscription.PlanChangeRequest) (limit int, ok bool, err error) {
	sub, err := e.store.GetActive(ctx, req.MerchantID)
	switch {
	case err == nil && sub.Status == subscription.StatusActive:
		return sub.ProductLimit, true, nil
	case err == nil:
		return 0, false, nil
	case !errors.Is(err, subscription.ErrNotFound):
		return 0, false, err
	}

	def, err := e.store.Catalog().Definition(req.RequestedPlan)
	if err != nil {
		return 0, false, err
	}
	return def.ProductLimit, true, nil
}
