package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/billing"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/downgrade"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/email"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/gating"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/httpserver"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/logger"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/merchant"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/pg"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/redis"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/requestid"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
	billingsvc "github.com/Lleewss/Biypod-merchant-v2/svc/billing"
)

// app holds every collaborator of a running process.
type app struct {
	cfg      appConfig
	log      *slog.Logger
	reg      *prometheus.Registry
	pool     *pgxpool.Pool
	rdb      *goredis.Client // nil when REDIS_URL is unset
	store    *subscription.Store
	enforcer *downgrade.Enforcer
	billing  *billingsvc.Service
	gating   *gating.Engine
}

func newLogger(cfg appConfig) *slog.Logger {
	log := logger.New(
		logger.WithConfig(cfg.Log),
		logger.WithContextExtractors(requestid.LoggerExtractor(), merchant.LoggerExtractor()),
	)
	slog.SetDefault(log)
	return log
}

func newApp(ctx context.Context, cfg appConfig, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, reg: prometheus.NewRegistry()}
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var err error
	if a.pool, err = pg.Connect(ctx, cfg.PG); err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := pg.Migrate(ctx, a.pool, subscription.Migrations, "migrations", cfg.PG, log); err != nil {
			a.close()
			return nil, err
		}
	}
	if cfg.Redis.Enabled() {
		if a.rdb, err = redis.Connect(ctx, cfg.Redis); err != nil {
			a.close()
			return nil, err
		}
	}

	catalog, err := plan.NewCatalog(ctx, plan.DefaultSource())
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = subscription.NewStore(subscription.NewPostgresRepository(a.pool), catalog,
		subscription.WithLogger(log.With(logger.Component("subscription"))))

	sender, err := email.NewSender(cfg.Email)
	if err != nil {
		a.close()
		return nil, err
	}
	a.enforcer = downgrade.NewEnforcer(a.store,
		downgrade.WithNotifier(email.NewNotifier(sender, catalog, cfg.Email.AppURL, log)),
		downgrade.WithBatchSize(cfg.Sweeper.BatchSize),
		downgrade.WithLogger(log.With(logger.Component("downgrade"))),
	)

	a.billing = billingsvc.NewService(a.store, a.provider(),
		billingsvc.WithDowngrader(a.enforcer),
		billingsvc.WithForceTestCharges(cfg.Shopify.ForceTestCharges),
		billingsvc.WithRegisterer(a.reg),
		billingsvc.WithLogger(log.With(logger.Component("billing"))),
	)
	a.gating = gating.NewEngine(a.store,
		gating.WithRegisterer(a.reg),
		gating.WithLogger(log.With(logger.Component("gating"))),
	)
	return a, nil
}

// provider builds the Shopify client. Tokens come from the session store in
// Redis when available, then from SHOPIFY_ACCESS_TOKENS.
func (a *app) provider() billing.Provider {
	tokens := []billing.TokenSource{}
	if a.rdb != nil {
		tokens = append(tokens, billing.NewRedisTokens(a.rdb))
	}
	tokens = append(tokens, billing.NewStaticTokens(a.cfg.AccessTokens))

	shopify := billing.NewShopifyProvider(a.cfg.Shopify, billing.ChainTokens(tokens...),
		billing.WithProviderLogger(a.log.With(logger.Component("shopify"))))
	var cache goredis.UniversalClient
	if a.rdb != nil {
		cache = a.rdb
	}
	return billing.NewCachedProvider(shopify, cache, a.cfg.Shopify.ShopCacheTTL, a.log)
}

func (a *app) checks() []httpserver.Check {
	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(a.pool)}}
	if a.rdb != nil {
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(a.rdb)})
	}
	return checks
}

func (a *app) sweeper() *downgrade.Sweeper {
	return downgrade.NewSweeper(a.enforcer, a.cfg.Sweeper.Interval,
		downgrade.WithSweeperRegisterer(a.reg),
		downgrade.WithSweeperLogger(a.log.With(logger.Component("sweeper"))),
	)
}

func (a *app) close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("closing redis failed", logger.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
