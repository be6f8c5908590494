package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doende/doende-payments/internal/core/domain"
)

// PlanRepository reads subscription plans from the storefront schema.
type PlanRepository struct {
	db *sql.DB
}

// NewPlanRepository creates a plan repository.
func NewPlanRepository(db *sql.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// FindBySlug returns domain.ErrPlanNotFound for missing or inactive plans.
func (r *PlanRepository) FindBySlug(ctx context.Context, slug string) (*domain.Plan, error) {
	query := `
		SELECT id, slug, name, price, is_active
		FROM plans
		WHERE slug = $1
	`
	plan := &domain.Plan{}
	err := r.db.QueryRowContext(ctx, query, slug).Scan(
		&plan.ID,
		&plan.Slug,
		&plan.Name,
		&plan.Price,
		&plan.IsActive,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan by slug %s: %w", slug, err)
	}
	if !plan.IsActive {
		return nil, domain.ErrPlanNotFound
	}
	return plan, nil
}
