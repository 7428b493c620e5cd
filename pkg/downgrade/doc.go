// Package downgrade keeps merchants within their plan's product limit after
// they move to a lower tier.
//
// # Grace period
//
// HandleDowngrade computes excess = max(0, active products - new limit). With
// no excess nothing happens. Otherwise a pending PlanChangeRequest is stored
// with a grace period ending five days later and the merchant is notified;
// every product stays published in the meantime.
//
//	enforcer := downgrade.NewEnforcer(store,
//		downgrade.WithNotifier(notifier),
//		downgrade.WithLogger(log),
//	)
//
//	out, err := enforcer.HandleDowngrade(ctx, downgrade.Request{
//		MerchantID:   "example.myshopify.com",
//		From:         plan.Creator,
//		To:           plan.Free,
//		ContactEmail: "owner@example.com",
//	})
//	if err != nil {
//		return err
//	}
//	// out.Excess products will be unpublished after out.ChangeRequest.GracePeriodEnd
//
// # Enforcement
//
// Once the grace period is over, EnforceDue calls UnpublishExcessProducts,
// which deactivates the oldest products and keeps the newest ones up to the
// limit. Ties in publish time fall back to insertion order. Calling it again
// at or below the limit returns 0 and writes nothing.
//
// The limit enforced is the merchant's active subscription's, so someone who
// upgraded again during the grace period keeps their products. While a newer
// subscription still awaits approval the request is deferred and stays
// pending; with no open subscription the requested plan's limit applies.
// EnforceDue reads due requests in pages (WithBatchSize) and pages past
// deferred ones, so they never hold up other merchants.
//
// # Sweeper
//
// Sweeper runs EnforceDue on a ticker until its context is cancelled.
// "biypod serve" runs it next to the HTTP server; "biypod sweep" runs one
// pass. Sweep failures are logged and retried on the next tick.
//
//	sweeper := downgrade.NewSweeper(enforcer, cfg.Interval,
//		downgrade.WithSweeperRegisterer(reg),
//	)
//	g.Go(func() error { return sweeper.Run(ctx) })
//
// Sweeps are counted in biypod_downgrade_sweeps_total{result},
// biypod_downgrade_requests_processed_total and
// biypod_downgrade_products_unpublished_total.
//
// # Notifications
//
// Notifier receives GracePeriodStarted and ProductsUnpublished. The email
// package provides the Postmark-backed implementation; NopNotifier is the
// default. Notification failures are logged and never fail enforcement.
package downgrade
