package plan

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var hundred = decimal.NewFromInt(100)

// Definition is the immutable description of a tier.
// Subscriptions snapshot these values at creation time.
type Definition struct {
	Type               Type
	Name               string
	ProductLimit       int
	UsageFeePercentage decimal.Decimal // e.g. 1.5 means 1.5% of the order subtotal
	RecurringAmount    decimal.Decimal // monthly USD amount, zero for the free tier
	TrialDays          int             // 0 means no trial
	Features           []string
	Limitations        []string
}

// Pricing holds the merchant-facing price strings for a tier.
type Pricing struct {
	Recurring string `json:"recurring"`
	UsageFee  string `json:"usage_fee"`
	Total     string `json:"total"`
}

// IsRecurring reports whether the tier carries a monthly charge.
func (d Definition) IsRecurring() bool {
	return d.RecurringAmount.IsPositive()
}

// HasTrial reports whether subscriptions on this tier start with a trial.
// Trials only apply to tiers with a recurring charge.
func (d Definition) HasTrial() bool {
	return d.TrialDays > 0 && d.IsRecurring()
}

// Pricing renders the price strings shown on the plan selection page.
func (d Definition) Pricing() Pricing {
	fee := formatPercentage(d.UsageFeePercentage) + " per order"
	if !d.IsRecurring() {
		return Pricing{
			Recurring: "Free",
			UsageFee:  fee,
			Total:     fee + " only",
		}
	}

	recurring := formatCurrency(d.RecurringAmount) + "/month"
	return Pricing{
		Recurring: recurring,
		UsageFee:  fee,
		Total:     recurring + " + " + fee,
	}
}

// UsageFee returns the fee owed for one qualifying order, rounded to cents.
func (d Definition) UsageFee(orderSubtotal decimal.Decimal) decimal.Decimal {
	if !orderSubtotal.IsPositive() {
		return decimal.Zero
	}
	return orderSubtotal.Mul(d.UsageFeePercentage).Div(hundred).Round(2)
}

// LimitLabel describes the publishing limit, e.g. "1,000 products".
func (d Definition) LimitLabel() string {
	p := message.NewPrinter(language.English)
	if d.ProductLimit == 1 {
		return "1 product"
	}
	return p.Sprintf("%d products", d.ProductLimit)
}

func (d Definition) validate() error {
	if !d.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidPlanConfiguration, d.Type)
	}
	if d.ProductLimit < 1 {
		return fmt.Errorf("%w: %s product limit must be at least 1", ErrInvalidPlanConfiguration, d.Type)
	}
	if d.TrialDays < 0 {
		return fmt.Errorf("%w: %s trial days must not be negative", ErrInvalidPlanConfiguration, d.Type)
	}
	if d.RecurringAmount.IsNegative() {
		return fmt.Errorf("%w: %s recurring amount must not be negative", ErrInvalidPlanConfiguration, d.Type)
	}
	if d.UsageFeePercentage.IsNegative() || d.UsageFeePercentage.GreaterThan(hundred) {
		return fmt.Errorf("%w: %s usage fee must be within [0, 100]", ErrInvalidPlanConfiguration, d.Type)
	}
	return nil
}

func formatCurrency(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}

func formatPercentage(pct decimal.Decimal) string {
	return pct.String() + "%"
}
