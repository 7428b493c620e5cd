// Package config fills configuration structs from environment variables.
//
// Fields are described with caarlos0/env tags; a .env file in the working
// directory is honoured through joho/godotenv.
//
//	type ShopifyConfig struct {
//		APIVersion string `env:"SHOPIFY_API_VERSION" envDefault:"2025-07"`
//	}
//
//	var cfg ShopifyConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// Load caches the result per type. Parse always reads fresh values and is
// what tests should use.
package config
