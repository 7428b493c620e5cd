package gating

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
)

// Feature identifies a plan-dependent capability.
type Feature string

const (
	FeatureProductPublishing     Feature = "product_publishing"
	FeatureAdvancedCustomization Feature = "advanced_customization"
	FeatureAnalytics             Feature = "analytics"
	FeatureBulkOperations        Feature = "bulk_operations"
)

// minimumPlan is the lowest tier that unlocks each feature.
var minimumPlan = map[Feature]plan.Type{
	FeatureProductPublishing:     plan.Free,
	FeatureAdvancedCustomization: plan.Starter,
	FeatureAnalytics:             plan.Starter,
	FeatureBulkOperations:        plan.Creator,
}

// Features lists every known feature.
func Features() []Feature {
	return []Feature{
		FeatureProductPublishing,
		FeatureAdvancedCustomization,
		FeatureAnalytics,
		FeatureBulkOperations,
	}
}

// FeatureAccess reports whether a merchant may use a feature.
// When denied, RequiredPlan is the cheapest tier that would grant it and
// UpgradeRequired a merchant-facing hint.
type FeatureAccess struct {
	Feature         Feature   `json:"feature"`
	HasAccess       bool      `json:"has_access"`
	Plan            string    `json:"plan_type"`
	RequiredPlan    plan.Type `json:"required_plan,omitempty"`
	UpgradeRequired string    `json:"upgrade_required,omitempty"`
}

// CheckFeatureAccess applies the feature policy to the merchant's active
// subscription. Unknown features and store failures deny.
func (e *Engine) CheckFeatureAccess(ctx context.Context, merchantID string, f Feature) FeatureAccess {
	sub, err := e.subs.GetActive(ctx, merchantID)
	if err != nil && !errors.Is(err, subscription.ErrNotFound) {
		e.log.ErrorContext(ctx, "feature access check failed",
			slog.String("shop", merchantID),
			slog.String("feature", string(f)),
			slog.Any("error", err),
		)
	}
	if err != nil || !sub.IsActive() {
		return FeatureAccess{Feature: f, Plan: "none", UpgradeRequired: "Any paid plan"}
	}

	access := FeatureAccess{Feature: f, Plan: string(sub.Plan)}
	required, ok := minimumPlan[f]
	if !ok {
		access.UpgradeRequired = "Unknown feature"
		return access
	}
	if sub.Plan.Rank() >= required.Rank() {
		access.HasAccess = true
		return access
	}
	access.RequiredPlan = required
	access.UpgradeRequired = upgradeHint(required)
	return access
}

// upgradeHint names the tiers at or above required, e.g. "Starter or Creator plan".
func upgradeHint(required plan.Type) string {
	var names []string
	for _, t := range plan.All() {
		if t.Rank() >= required.Rank() {
			names = append(names, t.DisplayName())
		}
	}
	switch len(names) {
	case 0:
		return "Unknown feature"
	case 1:
		return names[0] + " plan"
	default:
		hint := names[0]
		for _, n := range names[1 : len(names)-1] {
			hint += ", " + n
		}
		return hint + " or " + names[len(names)-1] + " plan"
	}
}
