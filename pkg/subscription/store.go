package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
)

// CreateParams describes a new subscription attempt.
type CreateParams struct {
	MerchantID       string
	Plan             plan.Type
	ProviderChargeID *string
	UsageLineItemID  *string
	ConfirmationURL  *string
	IsTestCharge     bool
}

// Store owns subscription, published product and plan change records
// and computes the fields derived from them.
type Store struct {
	repo    Repository
	catalog *plan.Catalog
	now     func() time.Time
	log     *slog.Logger
}

// NewStore creates a Store. Panics if repo or catalog is nil.
func NewStore(repo Repository, catalog *plan.Catalog, opts ...StoreOption) *Store {
	if repo == nil {
		panic("subscription: Repository is required")
	}
	if catalog == nil {
		panic("subscription: plan catalog is required")
	}

	s := &Store{
		repo:    repo,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Catalog returns the plan catalog the store snapshots from.
func (s *Store) Catalog() *plan.Catalog {
	return s.catalog
}

// Create persists a pending subscription with a snapshot of the plan's terms.
// A trial window is opened only for plans with both a trial and a recurring amount.
func (s *Store) Create(ctx context.Context, p CreateParams) (uuid.UUID, error) {
	if strings.TrimSpace(p.MerchantID) == "" {
		return uuid.Nil, ErrMissingMerchantID
	}
	def, err := s.catalog.Definition(p.Plan)
	if err != nil {
		return uuid.Nil, err
	}

	now := s.now()
	sub := &Subscription{
		ID:                 uuid.New(),
		MerchantID:         p.MerchantID,
		Plan:               def.Type,
		ProviderChargeID:   p.ProviderChargeID,
		UsageLineItemID:    p.UsageLineItemID,
		ConfirmationURL:    p.ConfirmationURL,
		Status:             StatusPending,
		RecurringAmount:    def.RecurringAmount,
		UsageFeePercentage: def.UsageFeePercentage,
		ProductLimit:       def.ProductLimit,
		TrialDays:          def.TrialDays,
		IsTestCharge:       p.IsTestCharge,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if def.HasTrial() {
		start := now
		end := now.AddDate(0, 0, def.TrialDays)
		sub.TrialStart = &start
		sub.TrialEnd = &end
	}

	if err := s.repo.InsertSubscription(ctx, sub); err != nil {
		return uuid.Nil, s.fail("create subscription", err)
	}

	s.log.InfoContext(ctx, "subscription created",
		slog.String("merchant_id", sub.MerchantID),
		slog.String("subscription_id", sub.ID.String()),
		slog.String("plan", string(sub.Plan)),
		slog.Bool("test_charge", sub.IsTestCharge),
	)
	return sub.ID, nil
}

// GetActive returns the merchant's most recent active or pending subscription.
// Returns ErrNotFound when the merchant has none.
func (s *Store) GetActive(ctx context.Context, merchantID string) (*Details, error) {
	sub, err := s.repo.LatestOpenSubscription(ctx, merchantID)
	if err != nil {
		return nil, s.fail("get active subscription", err)
	}
	return s.details(ctx, sub)
}

// GetLatest returns the merchant's most recent subscription in any status.
// Returns ErrNotFound when the merchant never subscribed.
func (s *Store) GetLatest(ctx context.Context, merchantID string) (*Details, error) {
	sub, err := s.repo.LatestSubscription(ctx, merchantID)
	if err != nil {
		return nil, s.fail("get latest subscription", err)
	}
	return s.details(ctx, sub)
}

// GetByID returns a subscription by its identifier.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Details, error) {
	sub, err := s.repo.SubscriptionByID(ctx, id)
	if err != nil {
		return nil, s.fail("get subscription", err)
	}
	return s.details(ctx, sub)
}

// GetByProviderChargeID returns the subscription created for a provider charge.
func (s *Store) GetByProviderChargeID(ctx context.Context, chargeID string) (*Details, error) {
	if chargeID == "" {
		return nil, ErrNotFound
	}
	sub, err := s.repo.SubscriptionByProviderChargeID(ctx, chargeID)
	if err != nil {
		return nil, s.fail("get subscription by charge", err)
	}
	return s.details(ctx, sub)
}

// UpdateStatus moves a subscription to a new status.
// Activation starts the billing period and cancels the merchant's other open
// subscriptions in the same write. Same-status updates are no-ops.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, providerChargeID *string) error {
	if _, err := ParseStatus(string(to)); err != nil {
		return err
	}

	sub, err := s.repo.SubscriptionByID(ctx, id)
	if err != nil {
		return s.fail("get subscription", err)
	}
	if sub.Status == to && providerChargeID == nil {
		return nil
	}
	if !CanTransition(sub.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, to)
	}

	now := s.now()
	upd := StatusUpdate{
		ID:               sub.ID,
		MerchantID:       sub.MerchantID,
		From:             sub.Status,
		To:               to,
		ProviderChargeID: providerChargeID,
		At:               now,
	}
	if to == StatusActive && sub.Status != StatusActive {
		start := now
		upd.CurrentPeriodStart = &start
		if sub.RecurringAmount.IsPositive() {
			end := now.Add(BillingPeriod)
			upd.CurrentPeriodEnd = &end
		}
		upd.Supersede = true
	}

	if err := s.repo.UpdateSubscriptionStatus(ctx, upd); err != nil {
		return s.fail("update subscription status", err)
	}

	s.log.InfoContext(ctx, "subscription status updated",
		slog.String("merchant_id", sub.MerchantID),
		slog.String("subscription_id", sub.ID.String()),
		slog.String("from", string(sub.Status)),
		slog.String("to", string(to)),
	)
	return nil
}

// CancelOpen cancels every active or pending subscription of the merchant.
func (s *Store) CancelOpen(ctx context.Context, merchantID string) (int, error) {
	n, err := s.repo.CancelOpenSubscriptions(ctx, merchantID, s.now())
	if err != nil {
		return 0, s.fail("cancel open subscriptions", err)
	}
	return n, nil
}

// CanPublishProduct compares the merchant's active product count with the plan limit.
// A merchant without a subscription cannot publish.
func (s *Store) CanPublishProduct(ctx context.Context, merchantID string) (PublishCheck, error) {
	sub, err := s.repo.LatestOpenSubscription(ctx, merchantID)
	if errors.Is(err, ErrNotFound) {
		return PublishCheck{CanPublish: false, CurrentCount: 0, Limit: 0}, nil
	}
	if err != nil {
		return PublishCheck{}, s.fail("get active subscription", err)
	}

	count, err := s.repo.CountActiveProducts(ctx, merchantID)
	if err != nil {
		return PublishCheck{}, s.fail("count active products", err)
	}

	return PublishCheck{
		CanPublish:   count < sub.ProductLimit,
		CurrentCount: count,
		Limit:        sub.ProductLimit,
		Plan:         sub.Plan,
	}, nil
}

// PublishProduct records a newly published product if the plan limit allows it.
func (s *Store) PublishProduct(ctx context.Context, merchantID, productRef string) (*PublishedProduct, error) {
	if strings.TrimSpace(productRef) == "" {
		return nil, ErrProductNotFound
	}
	sub, err := s.repo.LatestOpenSubscription(ctx, merchantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, s.fail("get active subscription", err)
	}

	now := s.now()
	p := &PublishedProduct{
		ID:          uuid.New(),
		MerchantID:  merchantID,
		ProductRef:  productRef,
		Active:      true,
		PublishedAt: now,
		CreatedAt:   now,
	}
	if err := s.repo.InsertProductWithinLimit(ctx, p, sub.ProductLimit); err != nil {
		return nil, s.fail("publish product", err)
	}
	return p, nil
}

// UnpublishProduct deactivates a product at the merchant's request.
func (s *Store) UnpublishProduct(ctx context.Context, merchantID, productRef string) error {
	if err := s.repo.DeactivateProduct(ctx, merchantID, productRef, UnpublishMerchantRequest, s.now()); err != nil {
		return s.fail("unpublish product", err)
	}
	return nil
}

// CountActiveProducts returns the number of currently published products.
func (s *Store) CountActiveProducts(ctx context.Context, merchantID string) (int, error) {
	n, err := s.repo.CountActiveProducts(ctx, merchantID)
	if err != nil {
		return 0, s.fail("count active products", err)
	}
	return n, nil
}

// DeactivateExcessProducts keeps the newest keep products active and deactivates the rest.
func (s *Store) DeactivateExcessProducts(ctx context.Context, merchantID string, keep int, reason UnpublishReason) (int, error) {
	n, err := s.repo.DeactivateExcessProducts(ctx, merchantID, max(0, keep), reason, s.now())
	if err != nil {
		return 0, s.fail("deactivate excess products", err)
	}
	return n, nil
}

// CreatePlanChangeRequest persists a pending downgrade request.
func (s *Store) CreatePlanChangeRequest(ctx context.Context, req *PlanChangeRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}
	req.Status = PlanChangePending
	if err := s.repo.InsertPlanChangeRequest(ctx, req); err != nil {
		return s.fail("create plan change request", err)
	}
	return nil
}

// DuePlanChangeRequests lists pending requests whose grace period has ended,
// starting after the given cursor (nil for the first page).
func (s *Store) DuePlanChangeRequests(ctx context.Context, after *DueCursor, limit int) ([]PlanChangeRequest, error) {
	reqs, err := s.repo.DuePlanChangeRequests(ctx, s.now(), after, limit)
	if err != nil {
		return nil, s.fail("list due plan change requests", err)
	}
	return reqs, nil
}

// ResolvePlanChangeRequest marks a request as handled.
func (s *Store) ResolvePlanChangeRequest(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.ResolvePlanChangeRequest(ctx, id, s.now()); err != nil {
		return s.fail("resolve plan change request", err)
	}
	return nil
}

func (s *Store) details(ctx context.Context, sub *Subscription) (*Details, error) {
	count, err := s.repo.CountActiveProducts(ctx, sub.MerchantID)
	if err != nil {
		return nil, s.fail("count active products", err)
	}
	return enrich(sub, count, s.now()), nil
}

// fail wraps backing-store faults; domain sentinels pass through untouched.
func (s *Store) fail(op string, err error) error {
	for _, sentinel := range []error{
		ErrNotFound,
		ErrStatusChanged,
		ErrProductNotFound,
		ErrProductLimitReached,
		ErrAlreadyPublished,
		ErrChangeRequestMissing,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
