// Package domain contains the core business entities for the billing service.
package domain

import "errors"

// Domain errors represent business rule violations.
var (
	// ErrUnauthorized is returned when no authenticated user is present.
	ErrUnauthorized = errors.New("authentication required")

	// ErrBlockedUser is returned when the account is blocked from purchasing.
	ErrBlockedUser = errors.New("account is blocked")

	// ErrValidation is returned for malformed request bodies.
	ErrValidation = errors.New("invalid request")

	// ErrPaymentValidation is returned when the payment payload matches
	// neither the PIX nor the card variant.
	ErrPaymentValidation = errors.New("invalid payment data")

	// ErrMissingCardToken is returned when a card payload carries no token.
	ErrMissingCardToken = errors.New("card token is required")

	// ErrPlanNotFound is returned when the plan does not exist or is inactive.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrAlreadySubscribed is returned when the user already holds an
	// active, paused, or pending-cancellation subscription.
	ErrAlreadySubscribed = errors.New("user already has an active subscription")

	// ErrAddressNotFound is returned when the address does not exist or is
	// not owned by the requesting user.
	ErrAddressNotFound = errors.New("address not found")

	// ErrSubscriptionNotFound is returned when the user has no subscription
	// to operate on.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrOrderNotFound is returned when an order does not exist or is not
	// owned by the requesting user.
	ErrOrderNotFound = errors.New("order not found")

	// ErrPaymentRejected is returned when the gateway declines a charge.
	ErrPaymentRejected = errors.New("payment rejected")

	// ErrGatewayError is returned when the gateway fails or its true state
	// is unknown (timeout, network failure, open circuit).
	ErrGatewayError = errors.New("payment gateway error")
)

// FieldError describes a single offending field in a validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error wraps a domain error with a user-presentable message and a stable
// machine-readable code that the calling UI can special-case. Validation
// failures additionally enumerate the offending fields.
type Error struct {
	Err     error
	Message string
	Code    string
	Fields  []FieldError
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work with Error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given sentinel, message, and code.
func NewError(err error, message, code string) *Error {
	return &Error{Err: err, Message: message, Code: code}
}

// NewValidationError creates an Error enumerating offending fields.
func NewValidationError(err error, message, code string, fields []FieldError) *Error {
	return &Error{Err: err, Message: message, Code: code, Fields: fields}
}
