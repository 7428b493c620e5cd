// Package billing is the boundary to Shopify Billing.
//
// Provider creates recurring and usage-only charges, submits usage records,
// reads a charge's status and looks up the shop's Shopify plan. ShopifyProvider
// implements it over the Admin GraphQL API; access tokens come from an injected
// TokenSource. Calls are never retried here. Rejections come back as
// *ProviderError (or *UsageRecordError for usage records) with the provider's
// message intact.
//
// ChargeForPlan picks the charge mode from the plan:
//
//	res, err := billing.ChargeForPlan(ctx, provider, def, shop, test, returnURL)
//	if err != nil {
//		return err
//	}
//	// redirect the merchant to res.ConfirmationURL
//
// Development, partner and staff shops cannot be billed for real; see
// IsDevelopmentTier. CachedProvider keeps QueryShop results in Redis.
package billing
