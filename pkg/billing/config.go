package billing

import "time"

// ShopifyConfig configures the Admin GraphQL client.
type ShopifyConfig struct {
	APIVersion  string        `env:"SHOPIFY_API_VERSION" envDefault:"2025-07"`
	HTTPTimeout time.Duration `env:"SHOPIFY_HTTP_TIMEOUT" envDefault:"15s"`
	// ForceTestCharges marks every charge as a test charge regardless of shop tier.
	ForceTestCharges bool          `env:"SHOPIFY_BILLING_FORCE_TEST" envDefault:"false"`
	ShopCacheTTL     time.Duration `env:"SHOPIFY_SHOP_CACHE_TTL" envDefault:"1h"`
}
