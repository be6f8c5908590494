package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Payment method discriminators accepted in a checkout payload.
const (
	MethodPix        = "pix"
	MethodCreditCard = "credit_card"
	MethodDebitCard  = "debit_card"
)

// PaymentData is the discriminated payment payload of a checkout request.
// Method selects the variant: "pix" carries no further fields, while the
// card variants require the tokenization hand-off fields.
type PaymentData struct {
	Method               string `json:"method"`
	Token                string `json:"token,omitempty"`
	PaymentMethodID      string `json:"paymentMethodId,omitempty"`
	IssuerID             int    `json:"issuerId,omitempty"`
	Installments         int    `json:"installments,omitempty"`
	PayerEmail           string `json:"payerEmail,omitempty"`
	IdentificationType   string `json:"identificationType,omitempty"`
	IdentificationNumber string `json:"identificationNumber,omitempty"`
}

// IsCard reports whether the payload selects one of the card variants.
func (p *PaymentData) IsCard() bool {
	return p.Method == MethodCreditCard || p.Method == MethodDebitCard
}

// Validate checks the payload against exactly one of the two variants.
// It runs before any side effect, so a missing card token fails the
// request without creating any Order or Payment.
func (p *PaymentData) Validate() error {
	switch p.Method {
	case MethodPix:
		return nil
	case MethodCreditCard, MethodDebitCard:
		if strings.TrimSpace(p.Token) == "" {
			return NewError(ErrMissingCardToken, "card token is required", "MISSING_CARD_TOKEN")
		}
		var fields []FieldError
		if p.PaymentMethodID == "" {
			fields = append(fields, FieldError{Field: "paymentData.paymentMethodId", Message: "required for card payments"})
		}
		if p.Installments < 1 || p.Installments > 12 {
			fields = append(fields, FieldError{Field: "paymentData.installments", Message: "must be between 1 and 12"})
		}
		if p.PayerEmail == "" {
			fields = append(fields, FieldError{Field: "paymentData.payerEmail", Message: "required for card payments"})
		}
		if len(fields) > 0 {
			return NewValidationError(ErrPaymentValidation,
				"payment data does not match the card variant",
				"PAYMENT_VALIDATION_ERROR", fields)
		}
		return nil
	default:
		return NewValidationError(ErrPaymentValidation,
			"payment method must be pix, credit_card, or debit_card",
			"PAYMENT_VALIDATION_ERROR",
			[]FieldError{{Field: "paymentData.method", Message: "unknown payment method"}})
	}
}

// ShippingOption is a previously quoted shipping choice echoed back by the
// storefront. The quoted price participates in the server-side total.
type ShippingOption struct {
	ID           string  `json:"id"`
	Carrier      string  `json:"carrier"`
	Service      string  `json:"service"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	DeliveryDays int     `json:"deliveryDays"`
}

// CheckoutRequest is a subscription checkout submission.
type CheckoutRequest struct {
	PlanSlug       string          `json:"planSlug"`
	AddressID      uuid.UUID       `json:"addressId"`
	PaymentData    PaymentData     `json:"paymentData"`
	ShippingOption *ShippingOption `json:"shippingOption,omitempty"`
}

// Validate checks the request shape and the payment payload variant.
func (r *CheckoutRequest) Validate() error {
	var fields []FieldError
	if strings.TrimSpace(r.PlanSlug) == "" {
		fields = append(fields, FieldError{Field: "planSlug", Message: "required"})
	}
	if r.AddressID == uuid.Nil {
		fields = append(fields, FieldError{Field: "addressId", Message: "required"})
	}
	if r.ShippingOption != nil {
		if r.ShippingOption.Price < 0 {
			fields = append(fields, FieldError{Field: "shippingOption.price", Message: "must be >= 0"})
		}
		if r.ShippingOption.DeliveryDays < 0 {
			fields = append(fields, FieldError{Field: "shippingOption.deliveryDays", Message: "must be >= 0"})
		}
	}
	if len(fields) > 0 {
		return NewValidationError(ErrValidation, "invalid checkout request", "VALIDATION_ERROR", fields)
	}
	return r.PaymentData.Validate()
}

// ShippingPrice returns the selected shipping option price, 0 when none.
func (r *CheckoutRequest) ShippingPrice() float64 {
	if r.ShippingOption == nil {
		return 0
	}
	return r.ShippingOption.Price
}

// Checkout result statuses.
const (
	CheckoutStatusPending   = "pending"
	CheckoutStatusApproved  = "approved"
	CheckoutStatusInProcess = "in_process"
)

// PixCheckout carries the QR materials the caller displays to the user.
type PixCheckout struct {
	GatewayID    string    `json:"id"`
	QRCode       string    `json:"qrCode"`
	QRCodeBase64 string    `json:"qrCodeBase64"`
	TicketURL    string    `json:"initPoint"`
	ExpiresAt    time.Time `json:"expirationDate"`
}

// CardCheckout carries the activation outcome of a card checkout.
type CardCheckout struct {
	SubscriptionID   uuid.UUID  `json:"subscriptionId"`
	AgreementID      string     `json:"mpSubscriptionId,omitempty"`
	GatewayPaymentID string     `json:"mpPaymentId"`
	NextPaymentDate  *time.Time `json:"nextPaymentDate,omitempty"`
	CardLastFour     string     `json:"cardLastFour"`
	CardBrand        string     `json:"cardBrand"`
}

// CheckoutResult is the discriminated outcome of a checkout invocation.
// Exactly one of Pix or Card is set on success; neither is set when the
// charge is still in process at the gateway.
type CheckoutResult struct {
	Status    string        `json:"status"`
	OrderID   uuid.UUID     `json:"orderId"`
	PaymentID uuid.UUID     `json:"paymentId"`
	Pix       *PixCheckout  `json:"pix,omitempty"`
	Card      *CardCheckout `json:"card,omitempty"`

	// Warning is set when the charge succeeded but the recurring agreement
	// failed to provision; the subscription is active and collection must
	// be fixed out-of-band.
	Warning string `json:"warning,omitempty"`
}
