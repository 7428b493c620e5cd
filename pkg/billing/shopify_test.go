package billing_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/billing"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
)

const shop = "acme.myshopify.com"

type capturedRequest struct {
	Token     string
	Query     string
	Variables map[string]any
}

type fakeShopify struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	response string
}

func (f *fakeShopify) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	f.requests = append(f.requests, capturedRequest{
		Token:     r.Header.Get("X-Shopify-Access-Token"),
		Query:     req.Query,
		Variables: req.Variables,
	})
	status, response := f.status, f.response
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, response)
}

func (f *fakeShopify) last(t *testing.T) capturedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newProvider(t *testing.T, status int, response string) (*billing.ShopifyProvider, *fakeShopify) {
	t.Helper()
	fake := &fakeShopify{status: status, response: response}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	p := billing.NewShopifyProvider(
		billing.ShopifyConfig{APIVersion: "2025-07"},
		billing.NewStaticTokens(map[string]string{shop: "shpat_test"}),
		billing.WithHTTPClient(srv.Client()),
		billing.WithEndpoint(func(string) string { return srv.URL }),
	)
	return p, fake
}

const createdResponse = `{"data":{"appSubscriptionCreate":{
	"appSubscription":{"id":"gid://shopify/AppSubscription/1","status":"PENDING","lineItems":[
		{"id":"gid://shopify/AppSubscriptionLineItem/10","plan":{"pricingDetails":{"__typename":"AppRecurringPricing"}}},
		{"id":"gid://shopify/AppSubscriptionLineItem/11","plan":{"pricingDetails":{"__typename":"AppUsagePricing"}}}
	]},
	"confirmationUrl":"https://acme.myshopify.com/admin/charges/1/confirm",
	"userErrors":[]}}}`

func TestCreateRecurringCharge(t *testing.T) {
	t.Parallel()

	t.Run("sends price trial and usage line", func(t *testing.T) {
		t.Parallel()
		p, fake := newProvider(t, 0, createdResponse)
		def := plan.MustDefault().MustDefinition(plan.Starter)

		res, err := billing.ChargeForPlan(context.Background(), p, def, shop, true, "https://app.example.com/billing/callback")
		require.NoError(t, err)
		assert.Equal(t, "gid://shopify/AppSubscription/1", res.ID)
		assert.Equal(t, billing.ChargePending, res.Status)
		assert.Equal(t, "https://acme.myshopify.com/admin/charges/1/confirm", res.ConfirmationURL)
		assert.Equal(t, "gid://shopify/AppSubscriptionLineItem/11", res.UsageLineItemID)

		req := fake.last(t)
		assert.Equal(t, "shpat_test", req.Token)
		assert.Contains(t, req.Query, "appSubscriptionCreate")
		assert.Equal(t, "Biypod Starter Plan", req.Variables["name"])
		assert.Equal(t, true, req.Variables["test"])
		assert.EqualValues(t, 14, req.Variables["trialDays"])
		assert.Equal(t, "https://app.example.com/billing/callback", req.Variables["returnUrl"])

		items := req.Variables["lineItems"].([]any)
		require.Len(t, items, 2)
		recurring := items[0].(map[string]any)["plan"].(map[string]any)["appRecurringPricingDetails"].(map[string]any)
		assert.Equal(t, "EVERY_30_DAYS", recurring["interval"])
		assert.Equal(t, "29", recurring["price"].(map[string]any)["amount"])
		assert.Equal(t, "USD", recurring["price"].(map[string]any)["currencyCode"])
		usage := items[1].(map[string]any)["plan"].(map[string]any)["appUsagePricingDetails"].(map[string]any)
		assert.Equal(t, "5% per order containing customized products", usage["terms"])
	})

	t.Run("zero amount is an invalid plan", func(t *testing.T) {
		t.Parallel()
		p, _ := newProvider(t, 0, createdResponse)
		_, err := p.CreateRecurringCharge(context.Background(), billing.RecurringChargeRequest{
			Shop:      shop,
			Name:      "Biypod Free Plan",
			Amount:    decimal.Zero,
			ReturnURL: "https://app.example.com/billing/callback",
		})
		assert.ErrorIs(t, err, plan.ErrInvalidPlan)
	})

	t.Run("user errors surface verbatim", func(t *testing.T) {
		t.Parallel()
		p, _ := newProvider(t, 0, `{"data":{"appSubscriptionCreate":{"appSubscription":null,"confirmationUrl":null,
			"userErrors":[{"field":["returnUrl"],"message":"Return URL must be HTTPS"}]}}}`)
		def := plan.MustDefault().MustDefinition(plan.Creator)

		_, err := billing.ChargeForPlan(context.Background(), p, def, shop, false, "http://insecure")
		require.Error(t, err)
		assert.ErrorIs(t, err, billing.ErrProvider)

		var pe *billing.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "Return URL must be HTTPS", pe.Message)
		assert.Equal(t, []string{"returnUrl"}, pe.Field)
	})
}

func TestCreateUsageCharge(t *testing.T) {
	t.Parallel()

	p, fake := newProvider(t, 0, `{"data":{"appSubscriptionCreate":{
		"appSubscription":{"id":"gid://shopify/AppSubscription/2","status":"PENDING","lineItems":[
			{"id":"gid://shopify/AppSubscriptionLineItem/20","plan":{"pricingDetails":{"__typename":"AppUsagePricing"}}}]},
		"confirmationUrl":"https://acme.myshopify.com/admin/charges/2/confirm","userErrors":[]}}}`)
	def := plan.MustDefault().MustDefinition(plan.Free)

	res, err := billing.ChargeForPlan(context.Background(), p, def, shop, false, "https://app.example.com/billing/callback")
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/AppSubscriptionLineItem/20", res.UsageLineItemID)

	req := fake.last(t)
	assert.Equal(t, "Biypod Free Plan", req.Variables["name"])
	assert.NotContains(t, req.Variables, "trialDays")
	items := req.Variables["lineItems"].([]any)
	require.Len(t, items, 1)
	usage := items[0].(map[string]any)["plan"].(map[string]any)["appUsagePricingDetails"].(map[string]any)
	assert.Equal(t, "10000", usage["cappedAmount"].(map[string]any)["amount"])
	assert.Equal(t, "8% per order containing customized products", usage["terms"])
}

func TestSubmitUsageRecord(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		p, fake := newProvider(t, 0, `{"data":{"appUsageRecordCreate":{"appUsageRecord":{"id":"gid://shopify/AppUsageRecord/1"},"userErrors":[]}}}`)

		err := p.SubmitUsageRecord(context.Background(), billing.UsageRecord{
			Shop:           shop,
			LineItemID:     "gid://shopify/AppSubscriptionLineItem/11",
			Amount:         decimal.RequireFromString("1.875"),
			Description:    "Biypod fee for order #1001",
			IdempotencyKey: "order-1001",
		})
		require.NoError(t, err)

		req := fake.last(t)
		assert.Equal(t, "gid://shopify/AppSubscriptionLineItem/11", req.Variables["subscriptionLineItemId"])
		assert.Equal(t, "1.88", req.Variables["price"].(map[string]any)["amount"])
		assert.Equal(t, "order-1001", req.Variables["idempotencyKey"])
	})

	t.Run("rejection", func(t *testing.T) {
		t.Parallel()
		p, _ := newProvider(t, 0, `{"data":{"appUsageRecordCreate":{"appUsageRecord":null,
			"userErrors":[{"field":["price"],"message":"Total price exceeds balance remaining"}]}}}`)

		err := p.SubmitUsageRecord(context.Background(), billing.UsageRecord{
			Shop:       shop,
			LineItemID: "gid://shopify/AppSubscriptionLineItem/11",
			Amount:     decimal.NewFromInt(5),
		})
		assert.ErrorIs(t, err, billing.ErrUsageRecord)

		var ue *billing.UsageRecordError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "Total price exceeds balance remaining", ue.Message)
	})

	t.Run("transport failure keeps status", func(t *testing.T) {
		t.Parallel()
		p, _ := newProvider(t, http.StatusServiceUnavailable, `unavailable`)

		err := p.SubmitUsageRecord(context.Background(), billing.UsageRecord{Shop: shop, LineItemID: "li", Amount: decimal.NewFromInt(1)})
		var ue *billing.UsageRecordError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, http.StatusServiceUnavailable, ue.StatusCode)
		assert.ErrorIs(t, err, billing.ErrProvider)
	})
}

func TestQueryShopAndCharge(t *testing.T) {
	t.Parallel()

	t.Run("shop", func(t *testing.T) {
		t.Parallel()
		p, _ := newProvider(t, 0, `{"data":{"shop":{"name":"Acme","email":"owner@acme.test","myshopifyDomain":"acme.myshopify.com","plan":{"displayName":"Development"}}}}`)

		info, err := p.QueryShop(context.Background(), shop)
		require.NoError(t, err)
		assert.Equal(t, "Acme", info.Name)
		assert.Equal(t, "owner@acme.test", info.Email)
		assert.True(t, billing.IsDevelopmentTier(info.Tier))
	})

	t.Run("charge", func(t *testing.T) {
		t.Parallel()
		p, fake := newProvider(t, 0, `{"data":{"node":{"id":"gid://shopify/AppSubscription/1","status":"ACTIVE","test":true}}}`)

		ch, err := p.QueryCharge(context.Background(), shop, "gid://shopify/AppSubscription/1")
		require.NoError(t, err)
		assert.Equal(t, billing.ChargeActive, ch.Status)
		assert.True(t, ch.Test)
		assert.Equal(t, "gid://shopify/AppSubscription/1", fake.last(t).Variables["id"])
	})

	t.Run("missing charge", func(t *testing.T) {
		t.Parallel()
		p, _ := newProvider(t, 0, `{"data":{"node":null}}`)

		_, err := p.QueryCharge(context.Background(), shop, "gid://shopify/AppSubscription/404")
		assert.ErrorIs(t, err, billing.ErrChargeNotFound)
	})

	t.Run("graphql errors", func(t *testing.T) {
		t.Parallel()
		p, _ := newProvider(t, 0, `{"errors":[{"message":"Throttled"}]}`)

		_, err := p.QueryShop(context.Background(), shop)
		var pe *billing.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "Throttled", pe.Message)
	})
}

func TestShopifyProviderGuards(t *testing.T) {
	t.Parallel()

	p, fake := newProvider(t, 0, `{}`)

	_, err := p.QueryShop(context.Background(), "not a shop")
	assert.ErrorIs(t, err, billing.ErrInvalidShopDomain)

	_, err = p.QueryShop(context.Background(), "unknown.myshopify.com")
	assert.ErrorIs(t, err, billing.ErrMissingAccessToken)

	_, err = p.CreateUsageCharge(context.Background(), billing.UsageChargeRequest{Shop: shop})
	assert.ErrorIs(t, err, billing.ErrMissingReturnURL)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.requests)
}

func TestIsDevelopmentTier(t *testing.T) {
	t.Parallel()

	for tier, want := range map[string]bool{
		"Development":       true,
		"Shopify Partner":   true,
		"Staff Business":    true,
		"partner test":      true,
		"Basic":             false,
		"Shopify Plus":      false,
		"":                  false,
		"Developer Preview": false,
	} {
		assert.Equal(t, want, billing.IsDevelopmentTier(tier), tier)
	}
}

func TestValidShopDomain(t *testing.T) {
	t.Parallel()

	assert.True(t, billing.ValidShopDomain("acme.myshopify.com"))
	assert.True(t, billing.ValidShopDomain("acme-2.myshopify.com"))
	assert.False(t, billing.ValidShopDomain("acme.com"))
	assert.False(t, billing.ValidShopDomain("https://acme.myshopify.com"))
	assert.False(t, billing.ValidShopDomain("-acme.myshopify.com"))
}
