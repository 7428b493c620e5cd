// Package subscription persists merchant subscriptions, published products and
// downgrade requests, and derives the values the rest of the app reads from them.
//
// # Lifecycle
//
// A subscription is created pending when the merchant picks a plan and the
// provider charge exists. Approval moves it to active, which starts the billing
// period and cancels any other open subscription of the merchant. Active or
// pending rows can end as cancelled or expired; terminal rows never come back,
// a new pending row supersedes them instead.
//
//	pending -> active -> cancelled | expired
//	pending -> cancelled | expired
//
// CanTransition holds the table. Setting a row to the status it already has
// is accepted and changes nothing. Status classification lives on the type:
// IsOpen (active, pending), IsBillable (active) and IsTerminal (cancelled,
// expired).
//
// The merchant's current subscription is the most recently created row in
// active or pending status. Ties on creation time fall back to insertion order.
// GetLatest also returns terminal rows, which lets callers tell a lapsed
// merchant from one who never subscribed.
//
// # Snapshots
//
// Plan terms (amount, fee, limit, trial length) are copied onto the row at
// creation, so catalog changes never rewrite existing subscriptions. The trial
// window is set only for plans with both a trial and a recurring amount.
// Details adds the values computed at read time: published product count,
// whether the trial is running, trial days left and usage percentage.
//
// # Published products
//
// PublishProduct checks the plan limit and inserts in one step, so concurrent
// publishes cannot overshoot it (Postgres serializes them with an advisory
// lock per merchant). UnpublishProduct and DeactivateExcessProducts flip the
// row to inactive and record why; rows are never deleted.
//
//	check, err := store.CanPublishProduct(ctx, shop)
//	if err != nil {
//		return err
//	}
//	if !check.CanPublish {
//		// check.CurrentCount of check.Limit used on check.Plan
//	}
//	if _, err := store.PublishProduct(ctx, shop, "gid://shopify/Product/1"); err != nil {
//		// ErrProductLimitReached, ErrAlreadyPublished or ErrNoActiveSubscription
//	}
//
// # Plan change requests
//
// A PlanChangeRequest records a downgrade that left the merchant above the
// new limit. DuePlanChangeRequests lists pending ones past their grace period
// in pages ordered by grace end and id; pass the DueCursor of the last row to
// get the next page.
//
// # Storage
//
// Store holds the rules and talks to a Repository. PostgresRepository is the
// production implementation over pgx; its schema ships in Migrations.
// MemoryRepository serves tests and local runs.
//
//	if err := pg.Migrate(ctx, pool, subscription.Migrations, "migrations", cfg, log); err != nil {
//		return err
//	}
//	repo := subscription.NewPostgresRepository(pool)
//	store := subscription.NewStore(repo, catalog, subscription.WithLogger(log))
//
//	details, err := store.GetActive(ctx, "example.myshopify.com")
//	if errors.Is(err, subscription.ErrNotFound) {
//		// merchant must pick a plan
//	}
//
// WithClock replaces time.Now, which tests use to move through trials and
// grace periods.
//
// # Error Handling
//
// Misses are ErrNotFound (or ErrProductNotFound, ErrChangeRequestMissing).
// Rejected status changes are ErrInvalidTransition. Backing-store faults
// surface as *PersistenceError carrying the failed operation and match
// ErrPersistence, so callers can tell an outage from a business rule:
//
//	if errors.Is(err, subscription.ErrPersistence) {
//		// retry later
//	}
package subscription
