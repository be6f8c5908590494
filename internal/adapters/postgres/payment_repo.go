package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/doende/doende-payments/internal/core/domain"
)

// PaymentRepository persists payment attempts. Recurring-charge payments
// carry no storefront order, so order_id is nullable.
type PaymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository creates a payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	id, order_id, provider, amount, status, gateway_id, status_detail,
	pix_qr_code, pix_qr_code_base64, pix_ticket_url, pix_expires_at,
	card_last_four, card_brand, created_at, updated_at
`

func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		orderIDValue(payment.OrderID),
		payment.Provider,
		payment.Amount,
		payment.Status,
		payment.GatewayID,
		payment.StatusDetail,
		payment.PixQRCode,
		payment.PixQRCodeBase64,
		payment.PixTicketURL,
		payment.PixExpiresAt,
		payment.CardLastFour,
		payment.CardBrand,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $1, gateway_id = $2, status_detail = $3,
		    pix_qr_code = $4, pix_qr_code_base64 = $5, pix_ticket_url = $6,
		    pix_expires_at = $7, card_last_four = $8, card_brand = $9,
		    updated_at = $10
		WHERE id = $11
	`
	res, err := r.db.ExecContext(ctx, query,
		payment.Status,
		payment.GatewayID,
		payment.StatusDetail,
		payment.PixQRCode,
		payment.PixQRCodeBase64,
		payment.PixTicketURL,
		payment.PixExpiresAt,
		payment.CardLastFour,
		payment.CardBrand,
		payment.UpdatedAt,
		payment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment %s: %w", payment.ID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for payment update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("payment with id %s not found for update", payment.ID)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PaymentRepository) GetByGatewayID(ctx context.Context, gatewayID string) (*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE gateway_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, gatewayID))
}

func (r *PaymentRepository) GetLatestByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, orderID))
}

func (r *PaymentRepository) scanOne(row *sql.Row) (*domain.Payment, error) {
	payment := &domain.Payment{}
	var orderID uuid.NullUUID
	err := row.Scan(
		&payment.ID,
		&orderID,
		&payment.Provider,
		&payment.Amount,
		&payment.Status,
		&payment.GatewayID,
		&payment.StatusDetail,
		&payment.PixQRCode,
		&payment.PixQRCodeBase64,
		&payment.PixTicketURL,
		&payment.PixExpiresAt,
		&payment.CardLastFour,
		&payment.CardBrand,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	if orderID.Valid {
		payment.OrderID = orderID.UUID
	}
	return payment, nil
}

// orderIDValue maps the zero UUID onto NULL for recurring-charge payments.
func orderIDValue(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
