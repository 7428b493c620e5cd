package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
)

// ShopifyProvider talks to the Shopify Admin GraphQL API.
type ShopifyProvider struct {
	cfg      ShopifyConfig
	tokens   TokenSource
	client   *http.Client
	endpoint func(shop string) string
	log      *slog.Logger
}

// ShopifyOption configures a ShopifyProvider.
type ShopifyOption func(*ShopifyProvider)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ShopifyOption {
	return func(p *ShopifyProvider) {
		if c != nil {
			p.client = c
		}
	}
}

// WithEndpoint overrides how the GraphQL URL of a shop is built.
func WithEndpoint(fn func(shop string) string) ShopifyOption {
	return func(p *ShopifyProvider) {
		if fn != nil {
			p.endpoint = fn
		}
	}
}

// WithProviderLogger sets the logger.
func WithProviderLogger(log *slog.Logger) ShopifyOption {
	return func(p *ShopifyProvider) {
		if log != nil {
			p.log = log
		}
	}
}

// NewShopifyProvider creates the Shopify billing adapter. Panics if tokens is nil.
func NewShopifyProvider(cfg ShopifyConfig, tokens TokenSource, opts ...ShopifyOption) *ShopifyProvider {
	if tokens == nil {
		panic("billing: TokenSource is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2025-07"
	}

	p := &ShopifyProvider{
		cfg:    cfg,
		tokens: tokens,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		log:    slog.Default(),
	}
	p.endpoint = func(shop string) string {
		return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shop, p.cfg.APIVersion)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

type lineItemInput struct {
	Plan lineItemPlan `json:"plan"`
}

type lineItemPlan struct {
	Recurring *recurringPricing `json:"appRecurringPricingDetails,omitempty"`
	Usage     *usagePricing     `json:"appUsagePricingDetails,omitempty"`
}

type recurringPricing struct {
	Price    money  `json:"price"`
	Interval string `json:"interval"`
}

type usagePricing struct {
	CappedAmount money  `json:"cappedAmount"`
	Terms        string `json:"terms"`
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

type createSubscriptionData struct {
	AppSubscriptionCreate struct {
		AppSubscription *struct {
			ID        string       `json:"id"`
			Status    ChargeStatus `json:"status"`
			LineItems []struct {
				ID   string `json:"id"`
				Plan struct {
					PricingDetails struct {
						Typename string `json:"__typename"`
					} `json:"pricingDetails"`
				} `json:"plan"`
			} `json:"lineItems"`
		} `json:"appSubscription"`
		ConfirmationURL string      `json:"confirmationUrl"`
		UserErrors      []userError `json:"userErrors"`
	} `json:"appSubscriptionCreate"`
}

// CreateRecurringCharge creates a 30-day recurring subscription.
// Fails with plan.ErrInvalidPlan when the amount is not positive.
func (p *ShopifyProvider) CreateRecurringCharge(ctx context.Context, req RecurringChargeRequest) (*ChargeResult, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: recurring charge needs a positive amount", plan.ErrInvalidPlan)
	}

	items := []lineItemInput{{Plan: lineItemPlan{Recurring: &recurringPricing{
		Price:    money{Amount: req.Amount, CurrencyCode: Currency},
		Interval: "EVERY_30_DAYS",
	}}}}
	if req.UsageCap.IsPositive() {
		items = append(items, lineItemInput{Plan: lineItemPlan{Usage: &usagePricing{
			CappedAmount: money{Amount: req.UsageCap, CurrencyCode: Currency},
			Terms:        req.UsageTerms,
		}}})
	}

	vars := map[string]any{
		"name":      req.Name,
		"lineItems": items,
		"test":      req.Test,
		"returnUrl": req.ReturnURL,
	}
	if req.TrialDays > 0 {
		vars["trialDays"] = req.TrialDays
	}
	return p.createSubscription(ctx, "create recurring charge", req.Shop, req.ReturnURL, vars)
}

// CreateUsageCharge creates a usage-only subscription with no trial.
func (p *ShopifyProvider) CreateUsageCharge(ctx context.Context, req UsageChargeRequest) (*ChargeResult, error) {
	vars := map[string]any{
		"name": req.Name,
		"lineItems": []lineItemInput{{Plan: lineItemPlan{Usage: &usagePricing{
			CappedAmount: money{Amount: req.CappedAmount, CurrencyCode: Currency},
			Terms:        req.Terms,
		}}}},
		"test":      req.Test,
		"returnUrl": req.ReturnURL,
	}
	return p.createSubscription(ctx, "create usage charge", req.Shop, req.ReturnURL, vars)
}

func (p *ShopifyProvider) createSubscription(ctx context.Context, op, shop, returnURL string, vars map[string]any) (*ChargeResult, error) {
	if returnURL == "" {
		return nil, ErrMissingReturnURL
	}

	var data createSubscriptionData
	if err := p.do(ctx, op, shop, createSubscriptionMutation, vars, &data); err != nil {
		return nil, err
	}

	out := data.AppSubscriptionCreate
	if len(out.UserErrors) > 0 {
		return nil, &ProviderError{Op: op, Message: out.UserErrors[0].Message, Field: out.UserErrors[0].Field}
	}
	if out.AppSubscription == nil {
		return nil, &ProviderError{Op: op, Message: "no subscription returned"}
	}
	if out.ConfirmationURL == "" {
		return nil, &ProviderError{Op: op, Err: ErrNoConfirmationURL}
	}

	res := &ChargeResult{
		ID:              out.AppSubscription.ID,
		Status:          out.AppSubscription.Status,
		ConfirmationURL: out.ConfirmationURL,
	}
	for _, li := range out.AppSubscription.LineItems {
		if li.Plan.PricingDetails.Typename == "AppUsagePricing" {
			res.UsageLineItemID = li.ID
			break
		}
	}

	p.log.InfoContext(ctx, "shopify charge created",
		slog.String("shop", shop),
		slog.String("charge_id", res.ID),
		slog.String("status", string(res.Status)),
	)
	return res, nil
}

// SubmitUsageRecord bills one usage fee against a usage line item.
func (p *ShopifyProvider) SubmitUsageRecord(ctx context.Context, rec UsageRecord) error {
	vars := map[string]any{
		"subscriptionLineItemId": rec.LineItemID,
		"price":                  money{Amount: rec.Amount.Round(2), CurrencyCode: Currency},
		"description":            rec.Description,
	}
	if rec.IdempotencyKey != "" {
		vars["idempotencyKey"] = rec.IdempotencyKey
	}

	var data struct {
		AppUsageRecordCreate struct {
			AppUsageRecord *struct {
				ID string `json:"id"`
			} `json:"appUsageRecord"`
			UserErrors []userError `json:"userErrors"`
		} `json:"appUsageRecordCreate"`
	}
	if err := p.do(ctx, "create usage record", rec.Shop, createUsageRecordMutation, vars, &data); err != nil {
		ue := &UsageRecordError{LineItemID: rec.LineItemID, Err: err}
		var pe *ProviderError
		if errors.As(err, &pe) {
			ue.Message = pe.Message
			ue.StatusCode = pe.StatusCode
		}
		return ue
	}

	if errs := data.AppUsageRecordCreate.UserErrors; len(errs) > 0 {
		return &UsageRecordError{LineItemID: rec.LineItemID, Message: errs[0].Message, Field: errs[0].Field}
	}
	return nil
}

// QueryCharge fetches the current status of a charge.
func (p *ShopifyProvider) QueryCharge(ctx context.Context, shop, chargeID string) (*Charge, error) {
	var data struct {
		Node *struct {
			ID     string       `json:"id"`
			Status ChargeStatus `json:"status"`
			Test   bool         `json:"test"`
		} `json:"node"`
	}
	if err := p.do(ctx, "query charge", shop, subscriptionQuery, map[string]any{"id": chargeID}, &data); err != nil {
		return nil, err
	}
	if data.Node == nil || data.Node.ID == "" {
		return nil, &ProviderError{Op: "query charge", Err: ErrChargeNotFound}
	}
	return &Charge{ID: data.Node.ID, Status: data.Node.Status, Test: data.Node.Test}, nil
}

// QueryShop returns the shop's name, contact email and Shopify plan.
func (p *ShopifyProvider) QueryShop(ctx context.Context, shop string) (*ShopInfo, error) {
	var data struct {
		Shop struct {
			Name            string `json:"name"`
			Email           string `json:"email"`
			MyshopifyDomain string `json:"myshopifyDomain"`
			Plan            struct {
				DisplayName string `json:"displayName"`
			} `json:"plan"`
		} `json:"shop"`
	}
	if err := p.do(ctx, "query shop", shop, shopQuery, nil, &data); err != nil {
		return nil, err
	}
	return &ShopInfo{
		Name:   data.Shop.Name,
		Email:  data.Shop.Email,
		Domain: data.Shop.MyshopifyDomain,
		Tier:   data.Shop.Plan.DisplayName,
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// do posts one GraphQL document and decodes data into out.
func (p *ShopifyProvider) do(ctx context.Context, op, shop, query string, vars map[string]any, out any) error {
	if !ValidShopDomain(shop) {
		return &ProviderError{Op: op, Err: fmt.Errorf("%w: %q", ErrInvalidShopDomain, shop)}
	}
	token, err := p.tokens.AccessToken(ctx, shop)
	if err != nil {
		return &ProviderError{Op: op, Err: errors.Join(ErrMissingAccessToken, err)}
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return &ProviderError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(shop), bytes.NewReader(body))
	if err != nil {
		return &ProviderError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", token)

	resp, err := p.client.Do(req)
	if err != nil {
		return &ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw))),
		}
	}

	var gql graphQLResponse
	if err := json.Unmarshal(raw, &gql); err != nil {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if len(gql.Errors) > 0 {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Message: gql.Errors[0].Message}
	}
	if len(gql.Data) == 0 || string(gql.Data) == "null" {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Message: "empty response"}
	}
	if err := json.Unmarshal(gql.Data, out); err != nil {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}
