package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/doende/doende-payments/internal/core/domain"
)

// OrderRepository persists orders with their denormalized address snapshot.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates an order repository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (
			id, user_id, plan_id, subtotal, discount, shipping, total, status,
			addr_street, addr_number, addr_complement, addr_neighborhood,
			addr_city, addr_state, addr_zip_code, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	var planID any
	if order.PlanID != nil {
		planID = *order.PlanID
	}
	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		planID,
		order.Subtotal,
		order.Discount,
		order.Shipping,
		order.Total,
		order.Status,
		order.Address.Street,
		order.Address.Number,
		order.Address.Complement,
		order.Address.Neighborhood,
		order.Address.City,
		order.Address.State,
		order.Address.ZipCode,
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `
		SELECT id, user_id, plan_id, subtotal, discount, shipping, total, status,
		       addr_street, addr_number, addr_complement, addr_neighborhood,
		       addr_city, addr_state, addr_zip_code, created_at
		FROM orders
		WHERE id = $1
	`
	order := &domain.Order{}
	var planID uuid.NullUUID
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.UserID,
		&planID,
		&order.Subtotal,
		&order.Discount,
		&order.Shipping,
		&order.Total,
		&order.Status,
		&order.Address.Street,
		&order.Address.Number,
		&order.Address.Complement,
		&order.Address.Neighborhood,
		&order.Address.City,
		&order.Address.State,
		&order.Address.ZipCode,
		&order.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order by id %s: %w", id, err)
	}
	if planID.Valid {
		order.PlanID = &planID.UUID
	}
	return order, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	query := `UPDATE orders SET status = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update order status %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for order status update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("order with id %s not found for status update", id)
	}
	return nil
}
