package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/doende/doende-payments/internal/core/domain"
)

// SubscriptionRepository persists subscriptions and their billing cycles.
// A partial unique index on (user_id) over occupied statuses closes the
// race between the point-in-time "already subscribed" check and insertion.
type SubscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository creates a subscription repository.
func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
	id, user_id, plan_id, status, agreement_id, next_billing_at, started_at, canceled_at
`

func (r *SubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		sub.ID,
		sub.UserID,
		sub.PlanID,
		sub.Status,
		sub.AgreementID,
		sub.NextBillingAt,
		sub.StartedAt,
		sub.CanceledAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrAlreadySubscribed
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *SubscriptionRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1
		  AND status IN ('ACTIVE', 'PAUSED', 'PENDING_CANCELLATION')
		ORDER BY started_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID))
}

func (r *SubscriptionRepository) GetByAgreementID(ctx context.Context, agreementID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE agreement_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, agreementID))
}

func (r *SubscriptionRepository) UserHasOccupied(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE user_id = $1
			  AND status IN ('ACTIVE', 'PAUSED', 'PENDING_CANCELLATION')
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user subscription: %w", err)
	}
	return exists, nil
}

func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubscriptionStatus, canceledAt *time.Time) error {
	query := `
		UPDATE subscriptions
		SET status = $1, canceled_at = COALESCE($2, canceled_at)
		WHERE id = $3
	`
	res, err := r.db.ExecContext(ctx, query, status, canceledAt, id)
	if err != nil {
		return fmt.Errorf("failed to update subscription status %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for subscription status update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("subscription with id %s not found for status update", id)
	}
	return nil
}

func (r *SubscriptionRepository) SetNextBilling(ctx context.Context, id uuid.UUID, next time.Time) error {
	query := `UPDATE subscriptions SET next_billing_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, next, id); err != nil {
		return fmt.Errorf("failed to set next billing for subscription %s: %w", id, err)
	}
	return nil
}

func (r *SubscriptionRepository) CreateCycle(ctx context.Context, cycle *domain.SubscriptionCycle) error {
	query := `
		INSERT INTO subscription_cycles (
			id, subscription_id, status, period_start, period_end, amount, payment_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		cycle.ID,
		cycle.SubscriptionID,
		cycle.Status,
		cycle.PeriodStart,
		cycle.PeriodEnd,
		cycle.Amount,
		cycle.PaymentID,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription cycle: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) ListCycles(ctx context.Context, subscriptionID uuid.UUID) ([]domain.SubscriptionCycle, error) {
	query := `
		SELECT id, subscription_id, status, period_start, period_end, amount, payment_id
		FROM subscription_cycles
		WHERE subscription_id = $1
		ORDER BY period_start
	`
	rows, err := r.db.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles for subscription %s: %w", subscriptionID, err)
	}
	defer rows.Close()

	var cycles []domain.SubscriptionCycle
	for rows.Next() {
		var c domain.SubscriptionCycle
		if err := rows.Scan(
			&c.ID,
			&c.SubscriptionID,
			&c.Status,
			&c.PeriodStart,
			&c.PeriodEnd,
			&c.Amount,
			&c.PaymentID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan subscription cycle: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscription cycles: %w", err)
	}
	return cycles, nil
}

func (r *SubscriptionRepository) scanOne(row *sql.Row) (*domain.Subscription, error) {
	sub := &domain.Subscription{}
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.PlanID,
		&sub.Status,
		&sub.AgreementID,
		&sub.NextBillingAt,
		&sub.StartedAt,
		&sub.CanceledAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return sub, nil
}
