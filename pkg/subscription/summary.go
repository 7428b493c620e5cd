package subscription

import (
	"context"
	"errors"
	"time"
)

// NoSubscription is the status reported in a Summary for merchants without a subscription.
const NoSubscription = "no_subscription"

// ProductUsage is the published product count against the plan limit.
type ProductUsage struct {
	Current    int `json:"current"`
	Limit      int `json:"limit"`
	Percentage int `json:"percentage"`
}

// Summary is the merchant-facing plan status shown on the app dashboard.
type Summary struct {
	PlanType           string       `json:"plan_type"`
	PlanName           string       `json:"plan_name"`
	Status             string       `json:"status"`
	IsTrialActive      bool         `json:"is_trial_active"`
	TrialDaysRemaining int          `json:"trial_days_remaining"`
	ProductUsage       ProductUsage `json:"product_usage"`
	NextBillingDate    *time.Time   `json:"next_billing_date,omitempty"`
}

// Summary builds the plan status of a merchant.
func (s *Store) Summary(ctx context.Context, merchantID string) (Summary, error) {
	d, err := s.GetActive(ctx, merchantID)
	if errors.Is(err, ErrNotFound) {
		return Summary{PlanType: "none", Status: NoSubscription}, nil
	}
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		PlanType:           string(d.Plan),
		PlanName:           d.Plan.DisplayName(),
		Status:             string(d.Status),
		IsTrialActive:      d.IsTrialActive,
		TrialDaysRemaining: d.TrialDaysRemaining,
		ProductUsage: ProductUsage{
			Current:    d.PublishedProductsCount,
			Limit:      d.ProductLimit,
			Percentage: d.UsagePercentage(),
		},
		NextBillingDate: d.CurrentPeriodEnd,
	}, nil
}
