package downgrade_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/downgrade"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
)

const shop = "acme.myshopify.com"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) GracePeriodStarted(ctx context.Context, req subscription.PlanChangeRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockNotifier) ProductsUnpublished(ctx context.Context, req subscription.PlanChangeRequest, n int) error {
	return m.Called(ctx, req, n).Error(0)
}

type fixture struct {
	store *subscription.Store
	repo  *subscription.MemoryRepository
	clock *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := subscription.NewMemoryRepository()
	clock := &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	return &fixture{
		store: subscription.NewStore(repo, plan.MustDefault(), subscription.WithClock(clock.Now)),
		repo:  repo,
		clock: clock,
	}
}

// subscribe creates an active subscription on p.
func (f *fixture) subscribe(t *testing.T, p plan.Type) {
	t.Helper()
	ctx := context.Background()
	id, err := f.store.Create(ctx, subscription.CreateParams{MerchantID: shop, Plan: p})
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateStatus(ctx, id, subscription.StatusActive, nil))
}

// publish publishes n products one minute apart.
func (f *fixture) publish(t *testing.T, n int) {
	t.Helper()
	for i := range n {
		f.clock.Advance(time.Minute)
		_, err := f.store.PublishProduct(context.Background(), shop, productRef(i))
		require.NoError(t, err)
	}
}

func (f *fixture) active() []string {
	var refs []string
	for _, p := range f.repo.Products(shop) {
		if p.Active {
			refs = append(refs, p.ProductRef)
		}
	}
	return refs
}

func productRef(i int) string {
	return fmt.Sprintf("gid://shopify/Product/%d", i)
}

func TestHandleDowngrade(t *testing.T) {
	t.Parallel()

	t.Run("creator with twelve products to free opens a grace period", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, plan.Creator)
		f.publish(t, 12)

		n := new(mockNotifier)
		n.On("GracePeriodStarted", mock.Anything, mock.MatchedBy(func(r subscription.PlanChangeRequest) bool {
			return r.MerchantID == shop && r.AffectedProducts == 11
		})).Return(nil).Once()
		enforcer := downgrade.NewEnforcer(f.store, downgrade.WithNotifier(n))

		out, err := enforcer.HandleDowngrade(context.Background(), downgrade.Request{
			MerchantID:   shop,
			From:         plan.Creator,
			To:           plan.Free,
			ContactEmail: "owner@acme.test",
		})
		require.NoError(t, err)
		assert.Equal(t, 12, out.ActiveProducts)
		assert.Equal(t, 1, out.NewLimit)
		assert.Equal(t, 11, out.Excess)
		require.NotNil(t, out.ChangeRequest)
		assert.Equal(t, f.clock.Now().Add(5*24*time.Hour), out.ChangeRequest.GracePeriodEnd)
		assert.Equal(t, subscription.PlanChangePending, out.ChangeRequest.Status)

		reqs := f.repo.PlanChangeRequests(shop)
		require.Len(t, reqs, 1)
		assert.Equal(t, plan.Free, reqs[0].RequestedPlan)
		assert.Equal(t, "owner@acme.test", reqs[0].ContactEmail)

		assert.Len(t, f.active(), 12, "nothing is unpublished during the grace period")
		n.AssertExpectations(t)
	})

	t.Run("within the new limit does nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, plan.Creator)
		f.publish(t, 15)

		n := new(mockNotifier)
		enforcer := downgrade.NewEnforcer(f.store, downgrade.WithNotifier(n))

		out, err := enforcer.HandleDowngrade(context.Background(), downgrade.Request{MerchantID: shop, From: plan.Creator, To: plan.Starter})
		require.NoError(t, err)
		assert.Zero(t, out.Excess)
		assert.Nil(t, out.ChangeRequest)
		assert.Empty(t, f.repo.PlanChangeRequests(shop))
		n.AssertNotCalled(t, "GracePeriodStarted", mock.Anything, mock.Anything)
	})

	t.Run("rejects upgrades and same plan", func(t *testing.T) {
		t.Parallel()
		enforcer := downgrade.NewEnforcer(newFixture(t).store)

		_, err := enforcer.HandleDowngrade(context.Background(), downgrade.Request{MerchantID: shop, From: plan.Free, To: plan.Creator})
		assert.ErrorIs(t, err, downgrade.ErrNotDowngrade)

		_, err = enforcer.HandleDowngrade(context.Background(), downgrade.Request{MerchantID: shop, From: plan.Starter, To: plan.Starter})
		assert.ErrorIs(t, err, downgrade.ErrNotDowngrade)

		_, err = enforcer.HandleDowngrade(context.Background(), downgrade.Request{From: plan.Creator, To: plan.Free})
		assert.ErrorIs(t, err, downgrade.ErrMissingMerchant)
	})

	t.Run("notification failure does not fail the downgrade", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, plan.Starter)
		f.publish(t, 3)

		n := new(mockNotifier)
		n.On("GracePeriodStarted", mock.Anything, mock.Anything).Return(errors.New("postmark down")).Once()
		enforcer := downgrade.NewEnforcer(f.store, downgrade.WithNotifier(n))

		out, err := enforcer.HandleDowngrade(context.Background(), downgrade.Request{MerchantID: shop, From: plan.Starter, To: plan.Free})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Excess)
		n.AssertExpectations(t)
	})
}

func TestUnpublishExcessProducts(t *testing.T) {
	t.Parallel()

	t.Run("keeps the newest and is idempotent", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, plan.Creator)
		f.publish(t, 12)
		enforcer := downgrade.NewEnforcer(f.store)
		ctx := context.Background()

		n, err := enforcer.UnpublishExcessProducts(ctx, shop, 1)
		require.NoError(t, err)
		assert.Equal(t, 11, n)
		assert.Equal(t, []string{productRef(11)}, f.active())

		for _, p := range f.repo.Products(shop) {
			if p.Active {
				continue
			}
			require.NotNil(t, p.UnpublishReason)
			assert.Equal(t, subscription.UnpublishPlanDowngrade, *p.UnpublishReason)
			require.NotNil(t, p.UnpublishedAt)
			assert.Equal(t, f.clock.Now(), *p.UnpublishedAt)
		}

		before := f.repo.Products(shop)
		f.clock.Advance(time.Hour)
		n, err = enforcer.UnpublishExcessProducts(ctx, shop, 1)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, before, f.repo.Products(shop), "second call must not write")
	})

	t.Run("same publish time falls back to insertion order", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, plan.Creator)
		ctx := context.Background()
		for i := range 3 {
			_, err := f.store.PublishProduct(ctx, shop, productRef(i))
			require.NoError(t, err)
		}

		n, err := downgrade.NewEnforcer(f.store).UnpublishExcessProducts(ctx, shop, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{productRef(1), productRef(2)}, f.active())
	})

	t.Run("zero limit unpublishes everything", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.subscribe(t, plan.Starter)
		f.publish(t, 4)

		n, err := downgrade.NewEnforcer(f.store).UnpublishExcessProducts(context.Background(), shop, 0)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Empty(t, f.active())
	})

	t.Run("negative limit", func(t *testing.T) {
		t.Parallel()
		_, err := downgrade.NewEnforcer(newFixture(t).store).UnpublishExcessProducts(context.Background(), shop, -1)
		assert.ErrorIs(t, err, downgrade.ErrNegativeLimit)
	})
}

func TestEnforceDue(t *testing.T) {
	t.Parallel()

	downgradeToFree := func(t *testing.T, f *fixture, n downgrade.Notifier) *downgrade.Enforcer {
		t.Helper()
		f.subscribe(t, plan.Creator)
		f.publish(t, 12)
		enforcer := downgrade.NewEnforcer(f.store, downgrade.WithNotifier(n))
		_, err := enforcer.HandleDowngrade(context.Background(), downgrade.Request{MerchantID: shop, From: plan.Creator, To: plan.Free})
		require.NoError(t, err)
		return enforcer
	}

	t.Run("waits for the grace period", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		enforcer := downgradeToFree(t, f, nil)
		f.subscribe(t, plan.Free)

		f.clock.Advance(5*24*time.Hour - time.Second)
		res, err := enforcer.EnforceDue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, downgrade.SweepResult{}, res)
		assert.Len(t, f.active(), 12)
	})

	t.Run("unpublishes after approval of the lower plan", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		n := new(mockNotifier)
		n.On("GracePeriodStarted", mock.Anything, mock.Anything).Return(nil)
		n.On("ProductsUnpublished", mock.Anything, mock.Anything, 11).Return(nil).Once()
		enforcer := downgradeToFree(t, f, n)
		f.subscribe(t, plan.Free)

		f.clock.Advance(5 * 24 * time.Hour)
		res, err := enforcer.EnforceDue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, downgrade.SweepResult{Processed: 1, Unpublished: 11}, res)
		assert.Equal(t, []string{productRef(11)}, f.active())

		reqs := f.repo.PlanChangeRequests(shop)
		require.Len(t, reqs, 1)
		assert.Equal(t, subscription.PlanChangeResolved, reqs[0].Status)
		n.AssertExpectations(t)

		res, err = enforcer.EnforceDue(context.Background())
		require.NoError(t, err)
		assert.Zero(t, res.Processed)
	})

	t.Run("merchant still on the higher plan keeps products", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		enforcer := downgradeToFree(t, f, nil)

		f.clock.Advance(6 * 24 * time.Hour)
		res, err := enforcer.EnforceDue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, downgrade.SweepResult{Processed: 1}, res)
		assert.Len(t, f.active(), 12)
	})

	t.Run("pending approval defers enforcement", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		enforcer := downgradeToFree(t, f, nil)
		_, err := f.store.Create(context.Background(), subscription.CreateParams{MerchantID: shop, Plan: plan.Free})
		require.NoError(t, err)

		f.clock.Advance(6 * 24 * time.Hour)
		res, err := enforcer.EnforceDue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, downgrade.SweepResult{Deferred: 1}, res)
		assert.Len(t, f.active(), 12)
		assert.Equal(t, subscription.PlanChangePending, f.repo.PlanChangeRequests(shop)[0].Status)
	})

	t.Run("deferred requests do not block later ones", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		enforcer := downgrade.NewEnforcer(f.store, downgrade.WithBatchSize(1))

		downgradeShop := func(merchant string, products int) {
			id, err := f.store.Create(ctx, subscription.CreateParams{MerchantID: merchant, Plan: plan.Creator})
			require.NoError(t, err)
			require.NoError(t, f.store.UpdateStatus(ctx, id, subscription.StatusActive, nil))
			for i := range products {
				f.clock.Advance(time.Minute)
				_, err := f.store.PublishProduct(ctx, merchant, productRef(i))
				require.NoError(t, err)
			}
			_, err = enforcer.HandleDowngrade(ctx, downgrade.Request{MerchantID: merchant, From: plan.Creator, To: plan.Free})
			require.NoError(t, err)
		}

		waiting, approved := "waiting.myshopify.com", "approved.myshopify.com"
		downgradeShop(waiting, 2)
		downgradeShop(approved, 3)

		_, err := f.store.Create(ctx, subscription.CreateParams{MerchantID: waiting, Plan: plan.Free})
		require.NoError(t, err)
		id, err := f.store.Create(ctx, subscription.CreateParams{MerchantID: approved, Plan: plan.Free})
		require.NoError(t, err)
		require.NoError(t, f.store.UpdateStatus(ctx, id, subscription.StatusActive, nil))

		f.clock.Advance(6 * 24 * time.Hour)
		res, err := enforcer.EnforceDue(ctx)
		require.NoError(t, err)
		assert.Equal(t, downgrade.SweepResult{Processed: 1, Unpublished: 2, Deferred: 1}, res)

		count, err := f.store.CountActiveProducts(ctx, approved)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		count, err = f.store.CountActiveProducts(ctx, waiting)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		res, err = enforcer.EnforceDue(ctx)
		require.NoError(t, err)
		assert.Equal(t, downgrade.SweepResult{Deferred: 1}, res)
	})

	t.Run("uninstalled merchant falls back to the requested plan", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		enforcer := downgradeToFree(t, f, nil)
		_, err := f.store.CancelOpen(context.Background(), shop)
		require.NoError(t, err)

		f.clock.Advance(6 * 24 * time.Hour)
		res, err := enforcer.EnforceDue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 11, res.Unpublished)
	})
}

func TestNewEnforcerPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { downgrade.NewEnforcer(nil) })
}
