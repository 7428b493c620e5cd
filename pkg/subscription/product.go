package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
)

// UnpublishReason records why a product stopped being published.
type UnpublishReason string

const (
	UnpublishPlanDowngrade   UnpublishReason = "plan_downgrade"
	UnpublishMerchantRequest UnpublishReason = "merchant_request"
)

// PublishedProduct is a merchant product made customizable by the app.
// Unpublishing flips Active and keeps the row for history.
type PublishedProduct struct {
	ID              uuid.UUID
	MerchantID      string
	ProductRef      string // Shopify product GID
	Active          bool
	PublishedAt     time.Time
	UnpublishedAt   *time.Time
	UnpublishReason *UnpublishReason
	CreatedAt       time.Time
	Seq             int64 // insertion order, breaks ties on PublishedAt
}

// PublishCheck is the answer to "may this merchant publish one more product".
type PublishCheck struct {
	CanPublish   bool      `json:"can_publish"`
	CurrentCount int       `json:"current_count"`
	Limit        int       `json:"limit"`
	Plan         plan.Type `json:"plan_type,omitempty"`
}

// PlanChangeStatus is the state of a PlanChangeRequest.
type PlanChangeStatus string

const (
	PlanChangePending  PlanChangeStatus = "pending"
	PlanChangeResolved PlanChangeStatus = "resolved"
)

// PlanChangeRequest records a downgrade that left a merchant above the new limit.
// Excess products stay published until GracePeriodEnd.
type PlanChangeRequest struct {
	ID               uuid.UUID
	MerchantID       string
	CurrentPlan      plan.Type
	RequestedPlan    plan.Type
	AffectedProducts int
	GracePeriodEnd   time.Time
	ContactEmail     string
	Status           PlanChangeStatus
	CreatedAt        time.Time
	ResolvedAt       *time.Time
}

// DueCursor is the position of the last request read while paging through
// due plan change requests. Pages are ordered by GracePeriodEnd, then ID.
type DueCursor struct {
	GracePeriodEnd time.Time
	ID             uuid.UUID
}
