// Package domain contains the core business entities for the billing service.
// This is the innermost layer - no dependencies on frameworks or infrastructure.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderShipped   OrderStatus = "SHIPPED"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCanceled  OrderStatus = "CANCELED"
)

// PaymentStatus is the lifecycle state of a Payment attempt.
// A Payment is created PENDING and moves exactly once to PAID or FAILED.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// SubscriptionStatus is the lifecycle state of a Subscription.
type SubscriptionStatus string

const (
	SubscriptionActive              SubscriptionStatus = "ACTIVE"
	SubscriptionPaused              SubscriptionStatus = "PAUSED"
	SubscriptionPendingCancellation SubscriptionStatus = "PENDING_CANCELLATION"
	SubscriptionCanceled            SubscriptionStatus = "CANCELED"
	SubscriptionExpired             SubscriptionStatus = "EXPIRED"
)

// Occupied reports whether the status counts against the one-subscription-per-user
// rule. CANCELED and EXPIRED subscriptions do not.
func (s SubscriptionStatus) Occupied() bool {
	switch s {
	case SubscriptionActive, SubscriptionPaused, SubscriptionPendingCancellation:
		return true
	}
	return false
}

// CycleStatus is the state of a single billing period.
type CycleStatus string

const (
	CyclePending CycleStatus = "PENDING"
	CyclePaid    CycleStatus = "PAID"
)

// Plan is a subscription plan sold by the storefront.
type Plan struct {
	ID       uuid.UUID `json:"id"`
	Slug     string    `json:"slug"`
	Name     string    `json:"name"`
	Price    float64   `json:"price"`
	IsActive bool      `json:"is_active"`
}

// Address is a user shipping address owned by the storefront.
type Address struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Street       string    `json:"street"`
	Number       string    `json:"number"`
	Complement   string    `json:"complement"`
	Neighborhood string    `json:"neighborhood"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	ZipCode      string    `json:"zip_code"`
}

// AddressSnapshot is a denormalized copy of an Address taken at order time,
// so later edits to the live address never alter historical orders.
type AddressSnapshot struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
}

// Snapshot copies the live address fields into an immutable snapshot.
func (a *Address) Snapshot() AddressSnapshot {
	return AddressSnapshot{
		Street:       a.Street,
		Number:       a.Number,
		Complement:   a.Complement,
		Neighborhood: a.Neighborhood,
		City:         a.City,
		State:        a.State,
		ZipCode:      a.ZipCode,
	}
}

// Order represents one purchase intent. It is created PENDING before any
// payment attempt and becomes immutable once marked PAID.
// Invariant: Total = Subtotal - Discount + Shipping.
type Order struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	// PlanID links subscription-checkout orders to the plan being bought,
	// so asynchronous confirmation knows which subscription to activate.
	PlanID    *uuid.UUID      `json:"plan_id,omitempty"`
	Subtotal  float64         `json:"subtotal"`
	Discount  float64         `json:"discount"`
	Shipping  float64         `json:"shipping"`
	Total     float64         `json:"total"`
	Status    OrderStatus     `json:"status"`
	Address   AddressSnapshot `json:"address"`
	CreatedAt time.Time       `json:"created_at"`
}

// Payment represents one attempted charge against an Order. An order may
// accumulate multiple Payment rows across retries.
type Payment struct {
	ID           uuid.UUID     `json:"id"`
	OrderID      uuid.UUID     `json:"order_id"`
	Provider     string        `json:"provider"`
	Amount       float64       `json:"amount"`
	Status       PaymentStatus `json:"status"`
	GatewayID    string        `json:"gateway_id"`
	StatusDetail string        `json:"status_detail"`

	// PIX materials returned by the gateway, present only on PIX attempts.
	PixQRCode       string     `json:"pix_qr_code,omitempty"`
	PixQRCodeBase64 string     `json:"pix_qr_code_base64,omitempty"`
	PixTicketURL    string     `json:"pix_ticket_url,omitempty"`
	PixExpiresAt    *time.Time `json:"pix_expires_at,omitempty"`

	// Card summary, present only on card attempts.
	CardLastFour string `json:"card_last_four,omitempty"`
	CardBrand    string `json:"card_brand,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscription represents a recurring billing relationship. AgreementID is
// the gateway's recurring-agreement identifier; it is empty when the first
// charge succeeded but the agreement failed to provision.
type Subscription struct {
	ID            uuid.UUID          `json:"id"`
	UserID        uuid.UUID          `json:"user_id"`
	PlanID        uuid.UUID          `json:"plan_id"`
	Status        SubscriptionStatus `json:"status"`
	AgreementID   string             `json:"agreement_id,omitempty"`
	NextBillingAt *time.Time         `json:"next_billing_at,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
	CanceledAt    *time.Time         `json:"canceled_at,omitempty"`
}

// SubscriptionCycle represents one billing period of a Subscription,
// linked to the Payment that funded it.
type SubscriptionCycle struct {
	ID             uuid.UUID   `json:"id"`
	SubscriptionID uuid.UUID   `json:"subscription_id"`
	Status         CycleStatus `json:"status"`
	PeriodStart    time.Time   `json:"period_start"`
	PeriodEnd      time.Time   `json:"period_end"`
	Amount         float64     `json:"amount"`
	PaymentID      uuid.UUID   `json:"payment_id"`
}

// WebhookNotification is an incoming notification from the payment gateway.
type WebhookNotification struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Action      string `json:"action"`
	DataID      string `json:"data_id"`
	LiveMode    bool   `json:"live_mode"`
	DateCreated string `json:"date_created"`
}

// Gateway notification types this service reacts to.
const (
	NotificationPayment         = "payment"
	NotificationAgreement       = "subscription_preapproval"
	NotificationRecurringCharge = "subscription_authorized_payment"
)

// UserContext is the authenticated session context threaded into the
// services by the HTTP layer. It is an explicit parameter rather than
// ambient state so the services stay testable.
type UserContext struct {
	UserID  uuid.UUID
	Email   string
	Blocked bool
}
