package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatusUpdate is a single status write. The row is only changed while it is
// still in From; otherwise the repository returns ErrStatusChanged.
type StatusUpdate struct {
	ID                 uuid.UUID
	MerchantID         string
	From               Status
	To                 Status
	ProviderChargeID   *string // overwrites the stored id when non-nil
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	At                 time.Time

	// Supersede cancels every other open subscription of the merchant
	// in the same transaction.
	Supersede bool
}

// Repository is the row-level persistence used by Store.
// Lookups that match nothing return ErrNotFound.
type Repository interface {
	InsertSubscription(ctx context.Context, sub *Subscription) error
	// LatestOpenSubscription returns the most recently created active or pending row.
	LatestOpenSubscription(ctx context.Context, merchantID string) (*Subscription, error)
	// LatestSubscription returns the most recently created row in any status.
	LatestSubscription(ctx context.Context, merchantID string) (*Subscription, error)
	SubscriptionByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	SubscriptionByProviderChargeID(ctx context.Context, chargeID string) (*Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, upd StatusUpdate) error
	CancelOpenSubscriptions(ctx context.Context, merchantID string, at time.Time) (int, error)

	CountActiveProducts(ctx context.Context, merchantID string) (int, error)
	// InsertProductWithinLimit inserts p only while fewer than limit products are active.
	// Returns ErrProductLimitReached or ErrAlreadyPublished without writing.
	InsertProductWithinLimit(ctx context.Context, p *PublishedProduct, limit int) error
	DeactivateProduct(ctx context.Context, merchantID, productRef string, reason UnpublishReason, at time.Time) error
	// DeactivateExcessProducts keeps the newest keep active products and deactivates the rest.
	DeactivateExcessProducts(ctx context.Context, merchantID string, keep int, reason UnpublishReason, at time.Time) (int, error)

	InsertPlanChangeRequest(ctx context.Context, req *PlanChangeRequest) error
	DuePlanChangeRequests(ctx context.Context, now time.Time, after *DueCursor, limit int) ([]PlanChangeRequest, error)
	ResolvePlanChangeRequest(ctx context.Context, id uuid.UUID, at time.Time) error
}
