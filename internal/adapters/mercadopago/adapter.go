// Package mercadopago implements the PaymentGateway port using the official SDK.
package mercadopago

import (
	"context"
	"errors"
	"strconv"
	"time"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preapproval"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/doende/doende-payments/internal/core/domain"
	"github.com/doende/doende-payments/internal/core/ports"
)

const (
	currencyBRL = "BRL"

	// requestTimeout bounds how long the orchestrator can block on a
	// single gateway call.
	requestTimeout = 10 * time.Second
)

// Adapter implements ports.PaymentGateway against Mercado Pago. Every call
// runs under a shared circuit breaker and a fixed request timeout; breaker
// and transport failures surface as domain.ErrGatewayError without implying
// the charge failed at the provider.
type Adapter struct {
	payments     payment.Client
	preapprovals preapproval.Client
	backURL      string
	breaker      *gobreaker.CircuitBreaker[any]
	logger       *zap.Logger
}

// NewAdapter creates a Mercado Pago adapter from the account access token.
func NewAdapter(accessToken, backURL string, logger *zap.Logger) (*Adapter, error) {
	cfg, err := mpconfig.New(accessToken)
	if err != nil {
		return nil, domain.NewError(domain.ErrGatewayError,
			"failed to create MP config", "MP_CONFIG_ERROR")
	}

	settings := gobreaker.Settings{
		Name:        "mercadopago",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("gateway circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Adapter{
		payments:     payment.NewClient(cfg),
		preapprovals: preapproval.NewClient(cfg),
		backURL:      backURL,
		breaker:      gobreaker.NewCircuitBreaker[any](settings),
		logger:       logger,
	}, nil
}

// execute runs a gateway call with breaker protection and the fixed timeout.
func (a *Adapter) execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	result, err := a.breaker.Execute(func() (any, error) {
		return fn(callCtx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.NewError(domain.ErrGatewayError,
			"payment gateway unavailable", "GATEWAY_UNAVAILABLE")
	}
	return result, err
}

// CreatePixCharge creates a one-time PIX charge and returns the QR materials.
func (a *Adapter) CreatePixCharge(ctx context.Context, req ports.PixChargeRequest) (*ports.PixCharge, error) {
	expiry := req.ExpiresAt
	mpReq := payment.Request{
		TransactionAmount: req.Amount,
		Description:       req.Description,
		PaymentMethodID:   "pix",
		Payer: &payment.PayerRequest{
			Email: req.PayerEmail,
		},
		ExternalReference: req.ExternalReference,
		DateOfExpiration:  &expiry,
		Metadata: map[string]any{
			"idempotency_key": req.IdempotencyKey,
		},
	}

	result, err := a.execute(ctx, func(ctx context.Context) (any, error) {
		return a.payments.Create(ctx, mpReq)
	})
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return nil, derr
		}
		return nil, domain.NewError(domain.ErrGatewayError,
			"failed to create PIX charge: "+err.Error(), "PIX_ERROR")
	}
	resp := result.(*payment.Response)

	charge := &ports.PixCharge{
		GatewayID:    strconv.Itoa(resp.ID),
		Status:       normalizeStatus(resp.Status),
		QRCode:       resp.PointOfInteraction.TransactionData.QRCode,
		QRCodeBase64: resp.PointOfInteraction.TransactionData.QRCodeBase64,
		TicketURL:    resp.PointOfInteraction.TransactionData.TicketURL,
	}
	if !resp.DateOfExpiration.IsZero() {
		charge.ExpiresAt = resp.DateOfExpiration
	}
	return charge, nil
}

// CreateCardCharge synchronously charges a tokenized card.
func (a *Adapter) CreateCardCharge(ctx context.Context, req ports.CardChargeRequest) (*ports.CardCharge, error) {
	payer := &payment.PayerRequest{
		Email: req.PayerEmail,
	}
	if req.IdentificationType != "" && req.IdentificationNumber != "" {
		payer.Identification = &payment.IdentificationRequest{
			Type:   req.IdentificationType,
			Number: req.IdentificationNumber,
		}
	}

	mpReq := payment.Request{
		TransactionAmount: req.Amount,
		Description:       req.Description,
		Token:             req.Token,
		Installments:      req.Installments,
		PaymentMethodID:   req.PaymentMethodID,
		Payer:             payer,
		ExternalReference: req.ExternalReference,
		Metadata: map[string]any{
			"idempotency_key": req.IdempotencyKey,
		},
	}
	if req.IssuerID > 0 {
		mpReq.IssuerID = strconv.Itoa(req.IssuerID)
	}

	result, err := a.execute(ctx, func(ctx context.Context) (any, error) {
		return a.payments.Create(ctx, mpReq)
	})
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return nil, derr
		}
		return nil, domain.NewError(domain.ErrGatewayError,
			"failed to create card charge: "+err.Error(), "MP_PAYMENT_ERROR")
	}
	return cardChargeFromResponse(result.(*payment.Response)), nil
}

// GetCharge retrieves the current status of a charge.
func (a *Adapter) GetCharge(ctx context.Context, gatewayID string) (*ports.CardCharge, error) {
	id, err := strconv.Atoi(gatewayID)
	if err != nil {
		return nil, domain.NewError(domain.ErrValidation,
			"invalid payment ID format", "INVALID_PAYMENT_ID")
	}

	result, err := a.execute(ctx, func(ctx context.Context) (any, error) {
		return a.payments.Get(ctx, id)
	})
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return nil, derr
		}
		return nil, domain.NewError(domain.ErrGatewayError,
			"failed to get payment info: "+err.Error(), "MP_PAYMENT_ERROR")
	}
	return cardChargeFromResponse(result.(*payment.Response)), nil
}

// CreateRecurringAgreement provisions a monthly preapproval that starts
// billing at StartDate, reusing the card token from the first charge.
func (a *Adapter) CreateRecurringAgreement(ctx context.Context, req ports.AgreementRequest) (*ports.Agreement, error) {
	start := req.StartDate
	mpReq := preapproval.Request{
		Reason:            req.Reason,
		ExternalReference: req.ExternalReference,
		PayerEmail:        req.PayerEmail,
		CardTokenID:       req.CardToken,
		BackURL:           a.backURL,
		AutoRecurring: &preapproval.AutoRecurringRequest{
			Frequency:         1,
			FrequencyType:     "months",
			TransactionAmount: req.Amount,
			CurrencyID:        currencyBRL,
			StartDate:         &start,
		},
		Status: "authorized",
	}

	result, err := a.execute(ctx, func(ctx context.Context) (any, error) {
		return a.preapprovals.Create(ctx, mpReq)
	})
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return nil, derr
		}
		return nil, domain.NewError(domain.ErrGatewayError,
			"failed to create preapproval: "+err.Error(), "MP_PREAPPROVAL_ERROR")
	}
	resp := result.(*preapproval.Response)

	return &ports.Agreement{
		ID:              resp.ID,
		Status:          resp.Status,
		NextPaymentDate: resp.NextPaymentDate,
	}, nil
}

// GetAgreement retrieves the current state of a preapproval.
func (a *Adapter) GetAgreement(ctx context.Context, agreementID string) (*ports.Agreement, error) {
	result, err := a.execute(ctx, func(ctx context.Context) (any, error) {
		return a.preapprovals.Get(ctx, agreementID)
	})
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return nil, derr
		}
		return nil, domain.NewError(domain.ErrGatewayError,
			"failed to get preapproval: "+err.Error(), "MP_PREAPPROVAL_ERROR")
	}
	resp := result.(*preapproval.Response)

	return &ports.Agreement{
		ID:              resp.ID,
		Status:          resp.Status,
		NextPaymentDate: resp.NextPaymentDate,
	}, nil
}

// PauseAgreement pauses collection on a preapproval.
func (a *Adapter) PauseAgreement(ctx context.Context, agreementID string) error {
	return a.updateAgreementStatus(ctx, agreementID, "paused")
}

// ResumeAgreement reauthorizes collection on a paused preapproval.
func (a *Adapter) ResumeAgreement(ctx context.Context, agreementID string) error {
	return a.updateAgreementStatus(ctx, agreementID, "authorized")
}

// CancelAgreement permanently cancels a preapproval.
func (a *Adapter) CancelAgreement(ctx context.Context, agreementID string) error {
	return a.updateAgreementStatus(ctx, agreementID, "cancelled")
}

func (a *Adapter) updateAgreementStatus(ctx context.Context, agreementID, status string) error {
	_, err := a.execute(ctx, func(ctx context.Context) (any, error) {
		return a.preapprovals.Update(ctx, agreementID, preapproval.UpdateRequest{Status: status})
	})
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return derr
		}
		return domain.NewError(domain.ErrGatewayError,
			"failed to update preapproval: "+err.Error(), "MP_PREAPPROVAL_ERROR")
	}
	return nil
}

// cardChargeFromResponse translates an SDK payment response into the
// orchestrator's vocabulary, filling the rejection translation for
// rejected charges.
func cardChargeFromResponse(resp *payment.Response) *ports.CardCharge {
	charge := &ports.CardCharge{
		GatewayID:         strconv.Itoa(resp.ID),
		Status:            normalizeStatus(resp.Status),
		StatusDetail:      resp.StatusDetail,
		Amount:            resp.TransactionAmount,
		ExternalReference: resp.ExternalReference,
		CardLastFour:      resp.Card.LastFourDigits,
		CardBrand:         resp.PaymentMethodID,
	}
	if charge.Status == ports.ChargeRejected {
		charge.RejectionCode, charge.RejectionMessage = TranslateRejection(resp.StatusDetail)
	}
	return charge
}

// normalizeStatus maps MP payment statuses onto the port's vocabulary.
func normalizeStatus(status string) string {
	switch status {
	case "approved":
		return ports.ChargeApproved
	case "rejected", "cancelled":
		return ports.ChargeRejected
	case "in_process", "in_mediation":
		return ports.ChargeInProcess
	default:
		return ports.ChargePending
	}
}
