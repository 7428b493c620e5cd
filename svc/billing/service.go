package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/billing"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/downgrade"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/logger"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/merchant"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
)

// Subscriptions is the part of *subscription.Store the service drives.
type Subscriptions interface {
	Catalog() *plan.Catalog
	Create(ctx context.Context, p subscription.CreateParams) (uuid.UUID, error)
	GetActive(ctx context.Context, merchantID string) (*subscription.Details, error)
	GetByID(ctx context.Context, id uuid.UUID) (*subscription.Details, error)
	GetByProviderChargeID(ctx context.Context, chargeID string) (*subscription.Details, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to subscription.Status, providerChargeID *string) error
	CancelOpen(ctx context.Context, merchantID string) (int, error)
}

// Downgrader opens the grace period for a move to a lower tier.
type Downgrader interface {
	HandleDowngrade(ctx context.Context, req downgrade.Request) (*downgrade.Outcome, error)
}

// shopForgetter is implemented by providers that cache shop data.
type shopForgetter interface {
	Forget(ctx context.Context, shop string) error
}

// SelectPlanRequest is a merchant's choice on the plan selection page.
type SelectPlanRequest struct {
	Shop      string
	Plan      string
	ReturnURL string
}

// SelectPlanResult tells the caller where to send the merchant.
type SelectPlanResult struct {
	SubscriptionID  uuid.UUID
	ConfirmationURL string
	Test            bool
	Downgrade       *downgrade.Outcome // set when the choice is a lower tier than the current one
}

// OrderUsage is a paid order that may carry a usage fee.
type OrderUsage struct {
	Shop            string
	OrderID         string
	OrderName       string
	Subtotal        decimal.Decimal
	CustomizedItems int
}

// UsageResult reports the fee billed for an order. Skipped orders have a zero fee.
type UsageResult struct {
	Fee     decimal.Decimal
	Skipped bool
}

// Service runs plan selection, charge confirmation, usage billing and
// uninstall handling against the subscription store and billing provider.
type Service struct {
	subs       Subscriptions
	provider   billing.Provider
	downgrader Downgrader
	forceTest  bool
	log        *slog.Logger
	reg        prometheus.Registerer
	metrics    *metrics
}

// NewService creates a Service. Panics if subs or provider is nil.
func NewService(subs Subscriptions, provider billing.Provider, opts ...Option) *Service {
	if subs == nil {
		panic("billing: Subscriptions is required")
	}
	if provider == nil {
		panic("billing: Provider is required")
	}
	s := &Service{subs: subs, provider: provider, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(s.reg)
	return s
}

// Catalog exposes the plan catalog for rendering the selection page.
func (s *Service) Catalog() *plan.Catalog {
	return s.subs.Catalog()
}

// SelectPlan creates the provider charge for the chosen tier and records a
// pending subscription. Picking a lower tier than the open subscription
// starts the downgrade grace period.
func (s *Service) SelectPlan(ctx context.Context, req SelectPlanRequest) (*SelectPlanResult, error) {
	shop := merchant.Normalize(req.Shop)
	if !merchant.Valid(shop) {
		return nil, merchant.ErrInvalidShop
	}
	t, err := plan.Parse(req.Plan)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ReturnURL) == "" {
		return nil, billing.ErrMissingReturnURL
	}
	def, err := s.subs.Catalog().Definition(t)
	if err != nil {
		return nil, err
	}

	current, err := s.subs.GetActive(ctx, shop)
	if err != nil && !errors.Is(err, subscription.ErrNotFound) {
		return nil, err
	}

	info := s.shopInfo(ctx, shop)
	test := s.forceTest || (info != nil && billing.IsDevelopmentTier(info.Tier))

	charge, err := billing.ChargeForPlan(ctx, s.provider, def, shop, test, req.ReturnURL)
	if err != nil {
		return nil, err
	}
	if charge.ConfirmationURL == "" {
		return nil, billing.ErrNoConfirmationURL
	}

	params := subscription.CreateParams{
		MerchantID:       shop,
		Plan:             t,
		ProviderChargeID: &charge.ID,
		ConfirmationURL:  &charge.ConfirmationURL,
		IsTestCharge:     test,
	}
	if charge.UsageLineItemID != "" {
		params.UsageLineItemID = &charge.UsageLineItemID
	}
	id, err := s.subs.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	s.metrics.charges.WithLabelValues(string(t), strconv.FormatBool(test)).Inc()
	s.log.InfoContext(ctx, "plan selected",
		logger.Shop(shop),
		logger.Plan(string(t)),
		logger.SubscriptionID(id),
		logger.ChargeID(charge.ID),
		slog.Bool("test", test),
	)

	res := &SelectPlanResult{SubscriptionID: id, ConfirmationURL: charge.ConfirmationURL, Test: test}
	if current != nil && s.downgrader != nil && plan.IsDowngrade(current.Plan, t) {
		dr := downgrade.Request{MerchantID: shop, From: current.Plan, To: t}
		if info != nil {
			dr.ContactEmail = info.Email
		}
		out, err := s.downgrader.HandleDowngrade(ctx, dr)
		if err != nil {
			s.log.ErrorContext(ctx, "downgrade handling failed", logger.Shop(shop), logger.Error(err))
		} else {
			res.Downgrade = out
		}
	}
	return res, nil
}

// shopInfo looks up the shop; a failed lookup is logged and yields nil so
// the charge is created as a real one.
func (s *Service) shopInfo(ctx context.Context, shop string) *billing.ShopInfo {
	info, err := s.provider.QueryShop(ctx, shop)
	if err != nil {
		s.log.WarnContext(ctx, "shop lookup failed", logger.Shop(shop), logger.Error(err))
		return nil
	}
	return info
}

// ConfirmCharge handles the merchant's return from the approval screen.
// The provider is asked for the charge's status; the query string is not trusted.
// A numeric charge id, as found on the return URL, is matched by its GID.
// An empty shop skips the ownership check.
func (s *Service) ConfirmCharge(ctx context.Context, shop, chargeID string) (*subscription.Details, error) {
	chargeID = billing.SubscriptionGID(chargeID)
	if chargeID == "" {
		return nil, ErrMissingChargeID
	}
	d, err := s.subs.GetByProviderChargeID(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	if shop != "" && merchant.Normalize(shop) != d.MerchantID {
		return nil, ErrShopMismatch
	}

	charge, err := s.provider.QueryCharge(ctx, d.MerchantID, chargeID)
	if err != nil {
		return nil, err
	}
	changed, err := s.apply(ctx, d, charge.Status)
	if err != nil {
		return nil, err
	}
	if !changed {
		return d, nil
	}
	return s.subs.GetByID(ctx, d.ID)
}

// ApplyProviderStatus applies a status pushed by the provider's
// subscription update webhook.
func (s *Service) ApplyProviderStatus(ctx context.Context, chargeID string, status billing.ChargeStatus) error {
	if strings.TrimSpace(chargeID) == "" {
		return ErrMissingChargeID
	}
	d, err := s.subs.GetByProviderChargeID(ctx, chargeID)
	if err != nil {
		return err
	}
	_, err = s.apply(ctx, d, status)
	return err
}

// apply moves d to the status mapped from the charge. Stale transitions,
// e.g. a late ACTIVE for an already expired row, are logged and ignored.
func (s *Service) apply(ctx context.Context, d *subscription.Details, status billing.ChargeStatus) (bool, error) {
	to, ok := StatusFromCharge(status)
	if !ok || to == d.Status {
		return false, nil
	}
	err := s.subs.UpdateStatus(ctx, d.ID, to, nil)
	switch {
	case errors.Is(err, subscription.ErrInvalidTransition):
		s.log.WarnContext(ctx, "ignoring stale charge status",
			logger.Shop(d.MerchantID),
			logger.SubscriptionID(d.ID),
			slog.String("current", string(d.Status)),
			slog.String("provider_status", string(status)),
		)
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// RecordOrderUsage bills the plan's percentage fee for a paid order with
// customized items. Orders without customized items or with a zero fee are
// skipped without calling the provider.
func (s *Service) RecordOrderUsage(ctx context.Context, o OrderUsage) (*UsageResult, error) {
	if strings.TrimSpace(o.OrderID) == "" {
		return nil, ErrMissingOrder
	}
	d, err := s.subs.GetActive(ctx, o.Shop)
	if errors.Is(err, subscription.ErrNotFound) {
		return nil, subscription.ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	if !d.IsActive() {
		return nil, ErrNotBillableState
	}

	fee := plan.Definition{UsageFeePercentage: d.UsageFeePercentage}.UsageFee(o.Subtotal)
	if o.CustomizedItems <= 0 || !fee.IsPositive() {
		s.metrics.usage.WithLabelValues("skipped").Inc()
		return &UsageResult{Fee: decimal.Zero, Skipped: true}, nil
	}
	if d.UsageLineItemID == nil {
		return nil, ErrNoUsageLineItem
	}

	name := o.OrderName
	if name == "" {
		name = o.OrderID
	}
	rec := billing.UsageRecord{
		Shop:           d.MerchantID,
		LineItemID:     *d.UsageLineItemID,
		Amount:         fee,
		Description:    fmt.Sprintf("Biypod %s%% fee for order %s", d.UsageFeePercentage.String(), name),
		IdempotencyKey: "order-" + o.OrderID,
	}
	if err := s.provider.SubmitUsageRecord(ctx, rec); err != nil {
		s.metrics.usage.WithLabelValues("failed").Inc()
		return nil, err
	}
	s.metrics.usage.WithLabelValues("recorded").Inc()
	s.log.InfoContext(ctx, "usage fee recorded",
		logger.Shop(d.MerchantID),
		slog.String("order_id", o.OrderID),
		slog.String("fee", fee.StringFixed(2)),
	)
	return &UsageResult{Fee: fee}, nil
}

// HandleUninstall cancels the merchant's open subscriptions and drops cached shop data.
func (s *Service) HandleUninstall(ctx context.Context, shop string) error {
	shop = merchant.Normalize(shop)
	if !merchant.Valid(shop) {
		return merchant.ErrInvalidShop
	}
	n, err := s.subs.CancelOpen(ctx, shop)
	if err != nil {
		return err
	}
	if f, ok := s.provider.(shopForgetter); ok {
		if err := f.Forget(ctx, shop); err != nil {
			s.log.WarnContext(ctx, "dropping cached shop failed", logger.Shop(shop), logger.Error(err))
		}
	}
	s.log.InfoContext(ctx, "app uninstalled", logger.Shop(shop), slog.Int("cancelled", n))
	return nil
}
