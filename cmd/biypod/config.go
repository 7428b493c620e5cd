package main

import (
	"github.com/Lleewss/Biypod-merchant-v2/pkg/billing"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/config"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/downgrade"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/email"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/httpserver"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/logger"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/pg"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/redis"
	"github.com/Lleewss/Biypod-merchant-v2/svc/api"
)

type appConfig struct {
	Log     logger.Config
	PG      pg.Config
	Redis   redis.Config
	HTTP    httpserver.Config
	Shopify billing.ShopifyConfig
	Email   email.Config
	Sweeper downgrade.SweeperConfig
	API     api.Config

	// AccessTokens holds shop:token pairs for development shops without a session store.
	AccessTokens map[string]string `env:"SHOPIFY_ACCESS_TOKENS"`
	AutoMigrate  bool              `env:"AUTO_MIGRATE" envDefault:"false"`
}

func loadConfig(envFiles []string) (appConfig, error) {
	var cfg appConfig
	err := config.Load(&cfg, config.WithEnvFiles(envFiles...))
	return cfg, err
}
