package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/merchant"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
)

// DefaultUsageCap bounds the usage fees Shopify may bill per 30-day cycle.
var DefaultUsageCap = decimal.NewFromInt(10000)

// Currency used for every charge.
const Currency = "USD"

// ChargeStatus is the provider-side state of a charge.
type ChargeStatus string

const (
	ChargePending   ChargeStatus = "PENDING"
	ChargeAccepted  ChargeStatus = "ACCEPTED"
	ChargeActive    ChargeStatus = "ACTIVE"
	ChargeDeclined  ChargeStatus = "DECLINED"
	ChargeExpired   ChargeStatus = "EXPIRED"
	ChargeFrozen    ChargeStatus = "FROZEN"
	ChargeCancelled ChargeStatus = "CANCELLED"
)

// RecurringChargeRequest asks for a monthly charge with an optional trial.
// A positive UsageCap attaches a usage line item so order fees can be billed too.
type RecurringChargeRequest struct {
	Shop       string
	Name       string
	Amount     decimal.Decimal
	TrialDays  int
	UsageCap   decimal.Decimal
	UsageTerms string
	Test       bool
	ReturnURL  string
}

// UsageChargeRequest asks for a usage-only charge capped at CappedAmount.
type UsageChargeRequest struct {
	Shop         string
	Name         string
	CappedAmount decimal.Decimal
	Terms        string
	Test         bool
	ReturnURL    string
}

// ChargeResult is what the provider returns for a created charge.
type ChargeResult struct {
	ID              string
	Status          ChargeStatus
	ConfirmationURL string
	UsageLineItemID string
}

// UsageRecord is one usage fee billed against a usage line item.
type UsageRecord struct {
	Shop           string
	LineItemID     string
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

// Charge is the provider's current view of a charge.
type Charge struct {
	ID     string
	Status ChargeStatus
	Test   bool
}

// ShopInfo is the subset of shop data billing needs.
type ShopInfo struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Domain string `json:"domain"`
	Tier   string `json:"tier"` // Shopify plan display name, e.g. "Developer Preview"
}

// Provider is the billing boundary. Implementations hold no merchant state
// and never retry; every failure is returned to the caller.
type Provider interface {
	CreateRecurringCharge(ctx context.Context, req RecurringChargeRequest) (*ChargeResult, error)
	CreateUsageCharge(ctx context.Context, req UsageChargeRequest) (*ChargeResult, error)
	SubmitUsageRecord(ctx context.Context, rec UsageRecord) error
	QueryCharge(ctx context.Context, shop, chargeID string) (*Charge, error)
	QueryShop(ctx context.Context, shop string) (*ShopInfo, error)
}

// ChargeForPlan creates the charge matching the plan's shape: recurring for
// tiers with a monthly amount, usage-only otherwise.
func ChargeForPlan(ctx context.Context, p Provider, def plan.Definition, shop string, test bool, returnURL string) (*ChargeResult, error) {
	name := ChargeName(def)
	terms := UsageTerms(def)

	if def.IsRecurring() {
		return p.CreateRecurringCharge(ctx, RecurringChargeRequest{
			Shop:       shop,
			Name:       name,
			Amount:     def.RecurringAmount,
			TrialDays:  def.TrialDays,
			UsageCap:   DefaultUsageCap,
			UsageTerms: terms,
			Test:       test,
			ReturnURL:  returnURL,
		})
	}
	return p.CreateUsageCharge(ctx, UsageChargeRequest{
		Shop:         shop,
		Name:         name,
		CappedAmount: DefaultUsageCap,
		Terms:        terms,
		Test:         test,
		ReturnURL:    returnURL,
	})
}

// ChargeName is the label merchants see on the Shopify approval screen.
func ChargeName(def plan.Definition) string {
	return fmt.Sprintf("Biypod %s Plan", def.Type.DisplayName())
}

// UsageTerms describes the usage fee on the approval screen.
func UsageTerms(def plan.Definition) string {
	return fmt.Sprintf("%s%% per order containing customized products", def.UsageFeePercentage.String())
}

// IsDevelopmentTier reports whether a shop plan name belongs to a non-paying
// development, partner or staff shop. Such shops only get test charges.
func IsDevelopmentTier(tier string) bool {
	t := strings.ToLower(tier)
	return strings.Contains(t, "development") ||
		strings.Contains(t, "partner") ||
		strings.Contains(t, "staff")
}

// ValidShopDomain reports whether s looks like a permanent *.myshopify.com domain.
func ValidShopDomain(s string) bool {
	return merchant.Valid(s)
}

// SubscriptionGIDPrefix prefixes the GraphQL id of an app subscription.
const SubscriptionGIDPrefix = "gid://shopify/AppSubscription/"

// SubscriptionGID returns the GraphQL id for a charge id. Shopify appends the
// numeric id to the billing return URL while the API hands out GIDs; numeric
// ids are expanded and anything else is returned trimmed.
func SubscriptionGID(chargeID string) string {
	chargeID = strings.TrimSpace(chargeID)
	if chargeID == "" || strings.TrimLeft(chargeID, "0123456789") != "" {
		return chargeID
	}
	return SubscriptionGIDPrefix + chargeID
}
