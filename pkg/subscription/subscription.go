package subscription

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
)

// BillingPeriod is the length of one recurring billing cycle.
const BillingPeriod = 30 * 24 * time.Hour

// Subscription is one attempt by a merchant to be on a plan.
// Plan fields are snapshotted at creation so later catalog changes
// never alter the terms of an existing subscription.
type Subscription struct {
	ID               uuid.UUID
	MerchantID       string // Shopify shop domain
	Plan             plan.Type
	ProviderChargeID *string // set once the provider charge exists
	UsageLineItemID  *string // provider line item usage records are billed against
	ConfirmationURL  *string
	Status           Status

	RecurringAmount    decimal.Decimal
	UsageFeePercentage decimal.Decimal
	ProductLimit       int
	TrialDays          int

	TrialStart         *time.Time // nil unless the plan has a trial and a recurring amount
	TrialEnd           *time.Time
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time

	IsTestCharge bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive returns true if the subscription is approved and billable.
func (s *Subscription) IsActive() bool {
	return s.Status.IsBillable()
}

// IsTrialActiveAt reports whether now falls inside the trial window, bounds inclusive.
func (s *Subscription) IsTrialActiveAt(now time.Time) bool {
	if s.TrialStart == nil || s.TrialEnd == nil {
		return false
	}
	return !now.Before(*s.TrialStart) && !now.After(*s.TrialEnd)
}

// TrialDaysRemainingAt returns the whole days left in the trial, rounded up.
// Returns 0 when there is no trial or it has ended.
func (s *Subscription) TrialDaysRemainingAt(now time.Time) int {
	if s.TrialEnd == nil {
		return 0
	}
	remaining := s.TrialEnd.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

// Details is a subscription enriched with fields derived at read time.
type Details struct {
	Subscription
	PublishedProductsCount int
	IsTrialActive          bool
	TrialDaysRemaining     int
}

// UsagePercentage returns published products as a rounded percentage of the limit.
func (d *Details) UsagePercentage() int {
	if d.ProductLimit <= 0 {
		return 0
	}
	return int(math.Round(float64(d.PublishedProductsCount) / float64(d.ProductLimit) * 100))
}

// RemainingProducts returns how many more products may be published, never negative.
func (d *Details) RemainingProducts() int {
	return max(0, d.ProductLimit-d.PublishedProductsCount)
}

func enrich(sub *Subscription, publishedCount int, now time.Time) *Details {
	return &Details{
		Subscription:           *sub,
		PublishedProductsCount: publishedCount,
		IsTrialActive:          sub.IsTrialActiveAt(now),
		TrialDaysRemaining:     sub.TrialDaysRemainingAt(now),
	}
}
