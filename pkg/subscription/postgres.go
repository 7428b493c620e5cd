package subscription

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Migrations holds the goose migrations for every table this package reads.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// DB is the subset of *pgxpool.Pool used by PostgresRepository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository implements Repository on PostgreSQL through pgx.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a repository. Panics if db is nil.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("subscription: DB is required")
	}
	return &PostgresRepository{db: db}
}

// Amounts travel as text so NUMERIC precision survives the round trip into decimal.Decimal.
const subscriptionCols = `id, merchant_id, plan_type, provider_charge_id, usage_line_item_id,
	confirmation_url, status, recurring_amount::text, usage_fee_percentage::text, product_limit,
	trial_days, trial_start, trial_end, current_period_start, current_period_end, is_test_charge,
	created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (*Subscription, error) {
	var (
		s               Subscription
		recurring, rate string
	)
	err := row.Scan(
		&s.ID, &s.MerchantID, &s.Plan, &s.ProviderChargeID, &s.UsageLineItemID,
		&s.ConfirmationURL, &s.Status, &recurring, &rate, &s.ProductLimit,
		&s.TrialDays, &s.TrialStart, &s.TrialEnd, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.IsTestCharge,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if s.RecurringAmount, err = decimal.NewFromString(recurring); err != nil {
		return nil, fmt.Errorf("parse recurring_amount: %w", err)
	}
	if s.UsageFeePercentage, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("parse usage_fee_percentage: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) InsertSubscription(ctx context.Context, s *Subscription) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO subscriptions (
			id, merchant_id, plan_type, provider_charge_id, usage_line_item_id, confirmation_url,
			status, recurring_amount, usage_fee_percentage, product_limit, trial_days,
			trial_start, trial_end, is_test_charge, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9::text::numeric, $10, $11, $12, $13, $14, $15, $16)`,
		s.ID, s.MerchantID, string(s.Plan), s.ProviderChargeID, s.UsageLineItemID, s.ConfirmationURL,
		string(s.Status), s.RecurringAmount.String(), s.UsageFeePercentage.String(), s.ProductLimit, s.TrialDays,
		s.TrialStart, s.TrialEnd, s.IsTestCharge, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *PostgresRepository) LatestOpenSubscription(ctx context.Context, merchantID string) (*Subscription, error) {
	return scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions
		 WHERE merchant_id = $1 AND status IN ('active', 'pending')
		 ORDER BY created_at DESC, seq DESC LIMIT 1`,
		merchantID,
	))
}

func (r *PostgresRepository) LatestSubscription(ctx context.Context, merchantID string) (*Subscription, error) {
	return scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions
		 WHERE merchant_id = $1
		 ORDER BY created_at DESC, seq DESC LIMIT 1`,
		merchantID,
	))
}

func (r *PostgresRepository) SubscriptionByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE id = $1`, id,
	))
}

func (r *PostgresRepository) SubscriptionByProviderChargeID(ctx context.Context, chargeID string) (*Subscription, error) {
	return scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE provider_charge_id = $1`, chargeID,
	))
}

func (r *PostgresRepository) UpdateSubscriptionStatus(ctx context.Context, upd StatusUpdate) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE subscriptions SET
				status = $3,
				provider_charge_id = COALESCE($4, provider_charge_id),
				current_period_start = COALESCE($5, current_period_start),
				current_period_end = COALESCE($6, current_period_end),
				updated_at = $7
			WHERE id = $1 AND status = $2`,
			upd.ID, string(upd.From), string(upd.To), upd.ProviderChargeID,
			upd.CurrentPeriodStart, upd.CurrentPeriodEnd, upd.At,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, upd.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrStatusChanged
		}

		if !upd.Supersede {
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE subscriptions SET status = 'cancelled', updated_at = $3
			WHERE merchant_id = $1 AND id <> $2 AND status IN ('active', 'pending')`,
			upd.MerchantID, upd.ID, upd.At,
		)
		return err
	})
}

func (r *PostgresRepository) CancelOpenSubscriptions(ctx context.Context, merchantID string, at time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE subscriptions SET status = 'cancelled', updated_at = $2
		WHERE merchant_id = $1 AND status IN ('active', 'pending')`,
		merchantID, at,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) CountActiveProducts(ctx context.Context, merchantID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM published_products WHERE merchant_id = $1 AND is_active`, merchantID,
	).Scan(&n)
	return n, err
}

func (r *PostgresRepository) InsertProductWithinLimit(ctx context.Context, p *PublishedProduct, limit int) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		// Serialises publishes per merchant so the count check cannot be raced.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, p.MerchantID); err != nil {
			return err
		}

		var duplicate bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM published_products
				WHERE merchant_id = $1 AND product_ref = $2 AND is_active
			)`, p.MerchantID, p.ProductRef,
		).Scan(&duplicate); err != nil {
			return err
		}
		if duplicate {
			return ErrAlreadyPublished
		}

		var count int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM published_products WHERE merchant_id = $1 AND is_active`, p.MerchantID,
		).Scan(&count); err != nil {
			return err
		}
		if count >= limit {
			return ErrProductLimitReached
		}

		return tx.QueryRow(ctx, `
			INSERT INTO published_products (id, merchant_id, product_ref, is_active, published_at, created_at)
			VALUES ($1, $2, $3, TRUE, $4, $5)
			RETURNING seq`,
			p.ID, p.MerchantID, p.ProductRef, p.PublishedAt, p.CreatedAt,
		).Scan(&p.Seq)
	})
}

func (r *PostgresRepository) DeactivateProduct(ctx context.Context, merchantID, productRef string, reason UnpublishReason, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE published_products SET is_active = FALSE, unpublished_at = $3, unpublish_reason = $4
		WHERE merchant_id = $1 AND product_ref = $2 AND is_active`,
		merchantID, productRef, at, string(reason),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *PostgresRepository) DeactivateExcessProducts(ctx context.Context, merchantID string, keep int, reason UnpublishReason, at time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE published_products SET is_active = FALSE, unpublished_at = $3, unpublish_reason = $4
		WHERE id IN (
			SELECT id FROM published_products
			WHERE merchant_id = $1 AND is_active
			ORDER BY published_at DESC, seq DESC
			OFFSET $2
		)`,
		merchantID, keep, at, string(reason),
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) InsertPlanChangeRequest(ctx context.Context, req *PlanChangeRequest) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO plan_change_requests (
			id, merchant_id, current_plan, requested_plan, affected_products,
			grace_period_end, contact_email, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID, req.MerchantID, string(req.CurrentPlan), string(req.RequestedPlan), req.AffectedProducts,
		req.GracePeriodEnd, req.ContactEmail, string(req.Status), req.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) DuePlanChangeRequests(ctx context.Context, now time.Time, after *DueCursor, limit int) ([]PlanChangeRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		afterEnd *time.Time
		afterID  *uuid.UUID
	)
	if after != nil {
		afterEnd, afterID = &after.GracePeriodEnd, &after.ID
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, merchant_id, current_plan, requested_plan, affected_products,
			grace_period_end, contact_email, status, created_at, resolved_at
		FROM plan_change_requests
		WHERE status = 'pending' AND grace_period_end <= $1
			AND ($3::timestamptz IS NULL OR (grace_period_end, id) > ($3::timestamptz, $4::uuid))
		ORDER BY grace_period_end, id
		LIMIT $2`,
		now, limit, afterEnd, afterID,
	)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PlanChangeRequest, error) {
		var req PlanChangeRequest
		err := row.Scan(
			&req.ID, &req.MerchantID, &req.CurrentPlan, &req.RequestedPlan, &req.AffectedProducts,
			&req.GracePeriodEnd, &req.ContactEmail, &req.Status, &req.CreatedAt, &req.ResolvedAt,
		)
		return req, err
	})
}

func (r *PostgresRepository) ResolvePlanChangeRequest(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE plan_change_requests SET status = 'resolved', resolved_at = $2
		WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrChangeRequestMissing
	}
	return nil
}
