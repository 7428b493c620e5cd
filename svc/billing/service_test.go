package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/billing"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/downgrade"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/merchant"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
	billingsvc "github.com/Lleewss/Biypod-merchant-v2/svc/billing"
)

const (
	shop      = "acme.myshopify.com"
	returnURL = "https://app.biypod.com/billing/callback"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CreateRecurringCharge(ctx context.Context, req billing.RecurringChargeRequest) (*billing.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ChargeResult), args.Error(1)
}

func (m *MockProvider) CreateUsageCharge(ctx context.Context, req billing.UsageChargeRequest) (*billing.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ChargeResult), args.Error(1)
}

func (m *MockProvider) SubmitUsageRecord(ctx context.Context, rec billing.UsageRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockProvider) QueryCharge(ctx context.Context, shop, chargeID string) (*billing.Charge, error) {
	args := m.Called(ctx, shop, chargeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Charge), args.Error(1)
}

func (m *MockProvider) QueryShop(ctx context.Context, shop string) (*billing.ShopInfo, error) {
	args := m.Called(ctx, shop)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ShopInfo), args.Error(1)
}

// CachingProvider adds the Forget hook of billing.CachedProvider.
type CachingProvider struct {
	MockProvider
}

func (m *CachingProvider) Forget(ctx context.Context, shop string) error {
	return m.Called(ctx, shop).Error(0)
}

type MockDowngrader struct {
	mock.Mock
}

func (m *MockDowngrader) HandleDowngrade(ctx context.Context, req downgrade.Request) (*downgrade.Outcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*downgrade.Outcome), args.Error(1)
}

type fixture struct {
	store    *subscription.Store
	provider *MockProvider
	svc      *billingsvc.Service
}

func newFixture(t *testing.T, opts ...billingsvc.Option) *fixture {
	t.Helper()
	store := subscription.NewStore(subscription.NewMemoryRepository(), plan.MustDefault())
	p := new(MockProvider)
	opts = append([]billingsvc.Option{billingsvc.WithRegisterer(prometheus.NewRegistry())}, opts...)
	return &fixture{store: store, provider: p, svc: billingsvc.NewService(store, p, opts...)}
}

// subscribe stores a subscription in the given status with a usage line item.
func (f *fixture) subscribe(t *testing.T, p plan.Type, chargeID string, status subscription.Status) *subscription.Details {
	t.Helper()
	ctx := context.Background()
	li := "gid://shopify/AppSubscriptionLineItem/" + chargeID
	id, err := f.store.Create(ctx, subscription.CreateParams{
		MerchantID:       shop,
		Plan:             p,
		ProviderChargeID: &chargeID,
		UsageLineItemID:  &li,
	})
	require.NoError(t, err)
	if status != subscription.StatusPending {
		require.NoError(t, f.store.UpdateStatus(ctx, id, status, nil))
	}
	d, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	return d
}

func TestNewServicePanics(t *testing.T) {
	t.Parallel()
	store := subscription.NewStore(subscription.NewMemoryRepository(), plan.MustDefault())
	assert.Panics(t, func() { billingsvc.NewService(nil, new(MockProvider)) })
	assert.Panics(t, func() { billingsvc.NewService(store, nil) })
}

func TestSelectPlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("development shop gets a test recurring charge", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("QueryShop", ctx, shop).Return(&billing.ShopInfo{Tier: "Developer Preview"}, nil).Once()
		f.provider.On("CreateRecurringCharge", ctx, mock.MatchedBy(func(req billing.RecurringChargeRequest) bool {
			return req.Shop == shop && req.Test && req.Amount.String() == "29" && req.ReturnURL == returnURL
		})).Return(&billing.ChargeResult{
			ID:              "gid://shopify/AppSubscription/1",
			ConfirmationURL: "https://acme.myshopify.com/admin/charges/1/confirm",
			UsageLineItemID: "gid://shopify/AppSubscriptionLineItem/1",
		}, nil).Once()

		res, err := f.svc.SelectPlan(ctx, billingsvc.SelectPlanRequest{Shop: " ACME.myshopify.com ", Plan: "Starter", ReturnURL: returnURL})
		require.NoError(t, err)
		assert.True(t, res.Test)
		assert.Equal(t, "https://acme.myshopify.com/admin/charges/1/confirm", res.ConfirmationURL)
		assert.Nil(t, res.Downgrade)

		d, err := f.store.GetByID(ctx, res.SubscriptionID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPending, d.Status)
		assert.Equal(t, plan.Starter, d.Plan)
		assert.True(t, d.IsTestCharge)
		require.NotNil(t, d.UsageLineItemID)
		assert.Equal(t, "gid://shopify/AppSubscriptionLineItem/1", *d.UsageLineItemID)
		f.provider.AssertExpectations(t)
	})

	t.Run("failed shop lookup yields a real charge", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("QueryShop", ctx, shop).Return(nil, errors.New("timeout")).Once()
		f.provider.On("CreateUsageCharge", ctx, mock.MatchedBy(func(req billing.UsageChargeRequest) bool {
			return !req.Test
		})).Return(&billing.ChargeResult{ID: "c-2", ConfirmationURL: "https://confirm/2"}, nil).Once()

		res, err := f.svc.SelectPlan(ctx, billingsvc.SelectPlanRequest{Shop: shop, Plan: "free", ReturnURL: returnURL})
		require.NoError(t, err)
		assert.False(t, res.Test)

		d, err := f.store.GetByID(ctx, res.SubscriptionID)
		require.NoError(t, err)
		assert.Nil(t, d.UsageLineItemID)
	})

	t.Run("forced test charges", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, billingsvc.WithForceTestCharges(true))
		f.provider.On("QueryShop", ctx, shop).Return(&billing.ShopInfo{Tier: "Shopify Plus"}, nil).Once()
		f.provider.On("CreateRecurringCharge", ctx, mock.MatchedBy(func(req billing.RecurringChargeRequest) bool {
			return req.Test
		})).Return(&billing.ChargeResult{ID: "c-3", ConfirmationURL: "https://confirm/3"}, nil).Once()

		res, err := f.svc.SelectPlan(ctx, billingsvc.SelectPlanRequest{Shop: shop, Plan: "creator", ReturnURL: returnURL})
		require.NoError(t, err)
		assert.True(t, res.Test)
	})

	t.Run("rejects bad input before calling the provider", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.SelectPlan(ctx, billingsvc.SelectPlanRequest{Shop: "acme.com", Plan: "starter", ReturnURL: returnURL})
		assert.ErrorIs(t, err, merchant.ErrInvalidShop)

		_, err = f.svc.SelectPlan(ctx, billingsvc.SelectPlanRequest{Shop: shop, Plan: "enterprise", ReturnURL: returnURL})
		assert.ErrorIs(t, err, plan.ErrInvalidPlan)

		_, err = f.svc.SelectPlan(ctx, billingsvc.SelectPlanRequest{Shop: shop, Plan: "starter"})
		assert.ErrorIs(t, err, billing.ErrMissingReturnURL)

		f.provider.AssertNotCalled(t, "QueryShop", mock.Anything, mock.Anything)
	})

	t.Run("provider rejection creates nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		perr := &billing.ProviderError{Op: "create recurring charge", Message: "Shop is frozen"}
		f.provider.On("QueryShop", ctx, shop).Return(&billing.ShopInfo{Tier: "Basic"}, nil).Once()
		f.provider.On("CreateRecurringCharge", ctx, mock.Anything).Return(nil, perr).Once()

		_, err := f.svc.SelectPlan(ctx, billingsvc.SelectPlanRequest{Shop: shop, Plan: "starter", ReturnURL: returnURL})
		assert.ErrorIs(t, err, billing.ErrProvider)

		_, err = f.store.GetActive(ctx, shop)
		assert.ErrorIs(t, err, subscription.ErrNotFound)
	})

	t.Run("lower tier starts the downgrade", func(t *testing.T) {
		t.Parallel()
		d := new(MockDowngrader)
		f := newFixture(t, billingsvc.WithDowngrader(d))
		f.subscribe(t, plan.Creator, "c-old", subscription.StatusActive)

		out := &downgrade.Outcome{ActiveProducts: 12, NewLimit: 1, Excess: 11}
		d.On("HandleDowngrade", ctx, downgrade.Request{
			MerchantID:   shop,
			From:         plan.Creator,
			To:           plan.Free,
			ContactEmail: "owner@acme.test",
		}).Return(out, nil).Once()
		f.provider.On("QueryShop", ctx, shop).Return(&billing.ShopInfo{Tier: "Basic", Email: "owner@acme.test"}, nil).Once()
		f.provider.On("CreateUsageCharge", ctx, mock.Anything).Return(&billing.ChargeResult{ID: "c-new", ConfirmationURL: "https://confirm/new"}, nil).Once()

		res, err := f.svc.SelectPlan(ctx, billingsvc.SelectPlanRequest{Shop: shop, Plan: "free", ReturnURL: returnURL})
		require.NoError(t, err)
		assert.Same(t, out, res.Downgrade)
		d.AssertExpectations(t)
	})

	t.Run("upgrade does not start a downgrade", func(t *testing.T) {
		t.Parallel()
		d := new(MockDowngrader)
		f := newFixture(t, billingsvc.WithDowngrader(d))
		f.subscribe(t, plan.Free, "c-old", subscription.StatusActive)
		f.provider.On("QueryShop", ctx, shop).Return(&billing.ShopInfo{Tier: "Basic"}, nil).Once()
		f.provider.On("CreateRecurringCharge", ctx, mock.Anything).Return(&billing.ChargeResult{ID: "c-up", ConfirmationURL: "https://confirm/up"}, nil).Once()

		_, err := f.svc.SelectPlan(ctx, billingsvc.SelectPlanRequest{Shop: shop, Plan: "creator", ReturnURL: returnURL})
		require.NoError(t, err)
		d.AssertNotCalled(t, "HandleDowngrade", mock.Anything, mock.Anything)
	})
}

func TestConfirmCharge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name     string
		provider billing.ChargeStatus
		want     subscription.Status
	}{
		{"approved", billing.ChargeActive, subscription.StatusActive},
		{"declined", billing.ChargeDeclined, subscription.StatusExpired},
		{"expired", billing.ChargeExpired, subscription.StatusExpired},
		{"cancelled", billing.ChargeCancelled, subscription.StatusCancelled},
		{"still pending", billing.ChargePending, subscription.StatusPending},
		{"accepted", billing.ChargeAccepted, subscription.StatusPending},
		{"frozen", billing.ChargeFrozen, subscription.StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.subscribe(t, plan.Starter, "c-1", subscription.StatusPending)
			f.provider.On("QueryCharge", ctx, shop, "c-1").Return(&billing.Charge{ID: "c-1", Status: tt.provider}, nil).Once()

			d, err := f.svc.ConfirmCharge(ctx, shop, "c-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Status)
			if tt.want == subscription.StatusActive {
				assert.NotNil(t, d.CurrentPeriodStart)
				assert.NotNil(t, d.CurrentPeriodEnd)
			}
		})
	}

	t.Run("unknown charge", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.svc.ConfirmCharge(ctx, shop, "missing")
		assert.ErrorIs(t, err, subscription.ErrNotFound)
		_, err = f.svc.ConfirmCharge(ctx, shop, " ")
		assert.ErrorIs(t, err, billingsvc.ErrMissingChargeID)
	})

	t.Run("numeric charge id from the return url", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		gid := "gid://shopify/AppSubscription/29605969"
		f.subscribe(t, plan.Creator, gid, subscription.StatusPending)
		f.provider.On("QueryCharge", ctx, shop, gid).Return(&billing.Charge{ID: gid, Status: billing.ChargeActive}, nil).Once()

		d, err := f.svc.ConfirmCharge(ctx, shop, "29605969")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, d.Status)
		f.provider.AssertExpectations(t)
	})

	t.Run("charge of another shop", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, plan.Starter, "c-1", subscription.StatusPending)
		_, err := f.svc.ConfirmCharge(ctx, "other.myshopify.com", "c-1")
		assert.ErrorIs(t, err, billingsvc.ErrShopMismatch)
		f.provider.AssertNotCalled(t, "QueryCharge", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("stale status is ignored", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, plan.Starter, "c-1", subscription.StatusExpired)
		f.provider.On("QueryCharge", ctx, shop, "c-1").Return(&billing.Charge{ID: "c-1", Status: billing.ChargeActive}, nil).Once()

		d, err := f.svc.ConfirmCharge(ctx, "", "c-1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusExpired, d.Status)
	})

	t.Run("activation supersedes the previous plan", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		old := f.subscribe(t, plan.Free, "c-old", subscription.StatusActive)
		f.subscribe(t, plan.Creator, "c-new", subscription.StatusPending)
		f.provider.On("QueryCharge", ctx, shop, "c-new").Return(&billing.Charge{Status: billing.ChargeActive}, nil).Once()

		_, err := f.svc.ConfirmCharge(ctx, shop, "c-new")
		require.NoError(t, err)

		prev, err := f.store.GetByID(ctx, old.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCancelled, prev.Status)
	})
}

func TestApplyProviderStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	sub := f.subscribe(t, plan.Creator, "c-1", subscription.StatusActive)

	require.NoError(t, f.svc.ApplyProviderStatus(ctx, "c-1", billing.ChargeFrozen))
	require.NoError(t, f.svc.ApplyProviderStatus(ctx, "c-1", billing.ChargeCancelled))

	d, err := f.store.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, d.Status)

	assert.ErrorIs(t, f.svc.ApplyProviderStatus(ctx, "nope", billing.ChargeActive), subscription.ErrNotFound)
	assert.ErrorIs(t, f.svc.ApplyProviderStatus(ctx, "", billing.ChargeActive), billingsvc.ErrMissingChargeID)
}

func TestRecordOrderUsage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("bills the snapshot percentage", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, plan.Starter, "c-1", subscription.StatusActive)
		f.provider.On("SubmitUsageRecord", ctx, mock.MatchedBy(func(rec billing.UsageRecord) bool {
			return rec.Shop == shop &&
				rec.LineItemID == "gid://shopify/AppSubscriptionLineItem/c-1" &&
				rec.Amount.String() == "1.88" &&
				rec.IdempotencyKey == "order-1001" &&
				rec.Description == "Biypod 5% fee for order #1001"
		})).Return(nil).Once()

		res, err := f.svc.RecordOrderUsage(ctx, billingsvc.OrderUsage{
			Shop:            shop,
			OrderID:         "1001",
			OrderName:       "#1001",
			Subtotal:        decimal.RequireFromString("37.50"),
			CustomizedItems: 2,
		})
		require.NoError(t, err)
		assert.False(t, res.Skipped)
		assert.Equal(t, "1.88", res.Fee.String())
		f.provider.AssertExpectations(t)
	})

	t.Run("skips orders without customized items", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, plan.Starter, "c-1", subscription.StatusActive)

		res, err := f.svc.RecordOrderUsage(ctx, billingsvc.OrderUsage{Shop: shop, OrderID: "1", Subtotal: decimal.NewFromInt(50)})
		require.NoError(t, err)
		assert.True(t, res.Skipped)

		res, err = f.svc.RecordOrderUsage(ctx, billingsvc.OrderUsage{Shop: shop, OrderID: "2", Subtotal: decimal.Zero, CustomizedItems: 1})
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		f.provider.AssertNotCalled(t, "SubmitUsageRecord", mock.Anything, mock.Anything)
	})

	t.Run("requires an active subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		o := billingsvc.OrderUsage{Shop: shop, OrderID: "1", Subtotal: decimal.NewFromInt(50), CustomizedItems: 1}

		_, err := f.svc.RecordOrderUsage(ctx, o)
		assert.ErrorIs(t, err, subscription.ErrNoActiveSubscription)

		f.subscribe(t, plan.Starter, "c-1", subscription.StatusPending)
		_, err = f.svc.RecordOrderUsage(ctx, o)
		assert.ErrorIs(t, err, billingsvc.ErrNotBillableState)

		_, err = f.svc.RecordOrderUsage(ctx, billingsvc.OrderUsage{Shop: shop})
		assert.ErrorIs(t, err, billingsvc.ErrMissingOrder)
	})

	t.Run("usage record rejection propagates", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, plan.Free, "c-1", subscription.StatusActive)
		rej := &billing.UsageRecordError{LineItemID: "li", Message: "Capped amount reached"}
		f.provider.On("SubmitUsageRecord", ctx, mock.Anything).Return(rej).Once()

		_, err := f.svc.RecordOrderUsage(ctx, billingsvc.OrderUsage{Shop: shop, OrderID: "9", Subtotal: decimal.NewFromInt(100), CustomizedItems: 1})
		assert.ErrorIs(t, err, billing.ErrUsageRecord)
	})
}

func TestHandleUninstall(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := subscription.NewStore(subscription.NewMemoryRepository(), plan.MustDefault())
	p := new(CachingProvider)
	p.On("Forget", ctx, shop).Return(errors.New("redis down")).Once()
	svc := billingsvc.NewService(store, p, billingsvc.WithRegisterer(prometheus.NewRegistry()))

	charge := "c-1"
	id, err := store.Create(ctx, subscription.CreateParams{MerchantID: shop, Plan: plan.Starter, ProviderChargeID: &charge})
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(ctx, id, subscription.StatusActive, nil))

	require.NoError(t, svc.HandleUninstall(ctx, shop))
	p.AssertExpectations(t)

	_, err = store.GetActive(ctx, shop)
	assert.ErrorIs(t, err, subscription.ErrNotFound)

	assert.ErrorIs(t, svc.HandleUninstall(ctx, "nope"), merchant.ErrInvalidShop)
}

func TestStatusFromCharge(t *testing.T) {
	t.Parallel()
	got, ok := billingsvc.StatusFromCharge(billing.ChargeActive)
	assert.True(t, ok)
	assert.Equal(t, subscription.StatusActive, got)

	_, ok = billingsvc.StatusFromCharge(billing.ChargeStatus("SOMETHING_NEW"))
	assert.False(t, ok)
}
