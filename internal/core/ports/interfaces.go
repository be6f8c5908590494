// Package ports defines the interfaces (ports) for the billing service.
// These are contracts that adapters must implement.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/doende/doende-payments/internal/core/domain"
)

// PixChargeRequest asks the gateway for a one-time PIX charge.
type PixChargeRequest struct {
	Amount            float64
	Description       string
	PayerEmail        string
	ExternalReference string
	IdempotencyKey    string
	ExpiresAt         time.Time
}

// PixCharge is the gateway's answer to a PIX charge request.
type PixCharge struct {
	GatewayID    string
	Status       string
	QRCode       string
	QRCodeBase64 string
	TicketURL    string
	ExpiresAt    time.Time
}

// CardChargeRequest asks the gateway for a one-time card charge using a
// previously tokenized card.
type CardChargeRequest struct {
	Amount               float64
	Description          string
	Token                string
	PaymentMethodID      string
	IssuerID             int
	Installments         int
	PayerEmail           string
	IdentificationType   string
	IdentificationNumber string
	ExternalReference    string
	IdempotencyKey       string
}

// Card charge outcomes, normalized from the gateway's status vocabulary.
const (
	ChargeApproved  = "approved"
	ChargeRejected  = "rejected"
	ChargeInProcess = "in_process"
	ChargePending   = "pending"
)

// CardCharge is the gateway's answer to a card charge request. For rejected
// charges the adapter fills RejectionCode and RejectionMessage from its
// error-code translation table.
type CardCharge struct {
	GatewayID         string
	Status            string
	StatusDetail      string
	Amount            float64
	ExternalReference string
	CardLastFour      string
	CardBrand         string
	RejectionCode     string
	RejectionMessage  string
}

// AgreementRequest asks the gateway to provision a recurring-billing
// agreement starting at StartDate, charging Amount every month against the
// stored card token.
type AgreementRequest struct {
	Reason            string
	Amount            float64
	CardToken         string
	PayerEmail        string
	ExternalReference string
	StartDate         time.Time
}

// Agreement is the gateway's recurring-billing agreement.
type Agreement struct {
	ID              string
	Status          string
	NextPaymentDate time.Time
}

// PaymentGateway is the port to the external payment provider. Timeouts and
// transport failures surface as errors wrapping domain.ErrGatewayError; they
// never imply the charge failed at the provider.
type PaymentGateway interface {
	// CreatePixCharge creates a one-time PIX charge and returns the QR materials.
	CreatePixCharge(ctx context.Context, req PixChargeRequest) (*PixCharge, error)

	// CreateCardCharge synchronously charges a tokenized card. A rejected
	// charge is returned as a CardCharge with ChargeRejected status, not an
	// error; errors mean the true outcome is unknown.
	CreateCardCharge(ctx context.Context, req CardChargeRequest) (*CardCharge, error)

	// CreateRecurringAgreement provisions the monthly recurring agreement.
	CreateRecurringAgreement(ctx context.Context, req AgreementRequest) (*Agreement, error)

	// GetCharge retrieves the current status of a charge by gateway id.
	GetCharge(ctx context.Context, gatewayID string) (*CardCharge, error)

	// GetAgreement retrieves the current state of a recurring agreement.
	GetAgreement(ctx context.Context, agreementID string) (*Agreement, error)

	// PauseAgreement stops collection on an agreement until resumed.
	PauseAgreement(ctx context.Context, agreementID string) error

	// ResumeAgreement reauthorizes collection on a paused agreement.
	ResumeAgreement(ctx context.Context, agreementID string) error

	// CancelAgreement permanently cancels an agreement.
	CancelAgreement(ctx context.Context, agreementID string) error
}

// OrderRepository persists Order records.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error
}

// PaymentRepository persists Payment records.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	Update(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByGatewayID(ctx context.Context, gatewayID string) (*domain.Payment, error)
	GetLatestByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error)
}

// SubscriptionRepository persists Subscription and SubscriptionCycle records.
type SubscriptionRepository interface {
	// Create inserts the subscription. It returns domain.ErrAlreadySubscribed
	// when the one-occupied-subscription-per-user constraint is violated.
	Create(ctx context.Context, sub *domain.Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	GetByUser(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	GetByAgreementID(ctx context.Context, agreementID string) (*domain.Subscription, error)
	UserHasOccupied(ctx context.Context, userID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubscriptionStatus, canceledAt *time.Time) error
	SetNextBilling(ctx context.Context, id uuid.UUID, next time.Time) error
	CreateCycle(ctx context.Context, cycle *domain.SubscriptionCycle) error
	ListCycles(ctx context.Context, subscriptionID uuid.UUID) ([]domain.SubscriptionCycle, error)
}

// PlanRepository reads subscription plans owned by the storefront.
type PlanRepository interface {
	// FindBySlug returns domain.ErrPlanNotFound for missing or inactive plans.
	FindBySlug(ctx context.Context, slug string) (*domain.Plan, error)
}

// AddressRepository reads user addresses owned by the storefront.
type AddressRepository interface {
	// FindByIDForUser returns domain.ErrAddressNotFound when the address
	// does not exist or belongs to a different user.
	FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Address, error)
}

// WebhookValidator validates gateway webhook signatures.
type WebhookValidator interface {
	// ValidateSignature checks the x-signature header against the shared
	// webhook secret.
	ValidateSignature(xSignature, xRequestID, dataID string) bool
}
