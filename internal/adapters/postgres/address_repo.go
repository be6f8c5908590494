package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/doende/doende-payments/internal/core/domain"
)

// AddressRepository reads user addresses from the storefront schema.
type AddressRepository struct {
	db *sql.DB
}

// NewAddressRepository creates an address repository.
func NewAddressRepository(db *sql.DB) *AddressRepository {
	return &AddressRepository{db: db}
}

// FindByIDForUser returns domain.ErrAddressNotFound when the address does
// not exist or belongs to a different user; ownership is part of the query
// so the two cases are indistinguishable to the caller.
func (r *AddressRepository) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Address, error) {
	query := `
		SELECT id, user_id, street, number, complement, neighborhood, city, state, zip_code
		FROM addresses
		WHERE id = $1 AND user_id = $2
	`
	address := &domain.Address{}
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(
		&address.ID,
		&address.UserID,
		&address.Street,
		&address.Number,
		&address.Complement,
		&address.Neighborhood,
		&address.City,
		&address.State,
		&address.ZipCode,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrAddressNotFound
		}
		return nil, fmt.Errorf("failed to get address %s: %w", id, err)
	}
	return address, nil
}
