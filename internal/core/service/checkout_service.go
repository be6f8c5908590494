// Package service implements the core business logic of the billing service.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doende/doende-payments/internal/core/domain"
	"github.com/doende/doende-payments/internal/core/ports"
)

const (
	providerMercadoPago = "mercadopago"

	// pixExpiryWindow is the default lifetime of a PIX QR code when the
	// gateway does not report one.
	pixExpiryWindow = 30 * time.Minute

	// firstAgreementDelay is how far in the future the recurring agreement
	// starts billing; the first cycle is covered by the synchronous charge.
	firstAgreementDelay = 30 * 24 * time.Hour

	agreementWarning = "payment approved but recurring billing setup failed; collection requires manual attention"
)

// CheckoutService orchestrates the subscription checkout flow: it validates
// the request, computes the authoritative price, sequences gateway calls and
// persistence writes, and returns a unified result or error.
//
// Side effects are ordered and individually durable. Nothing is rolled back
// after the Order and Payment rows exist: an auditable partial state is
// preferred over all-or-nothing semantics, because the gateway call cannot
// join a local transaction.
type CheckoutService struct {
	orders    ports.OrderRepository
	payments  ports.PaymentRepository
	subs      ports.SubscriptionRepository
	plans     ports.PlanRepository
	addresses ports.AddressRepository
	gateway   ports.PaymentGateway
	logger    *zap.Logger

	now func() time.Time
}

// NewCheckoutService creates a checkout service with its dependencies.
func NewCheckoutService(
	orders ports.OrderRepository,
	payments ports.PaymentRepository,
	subs ports.SubscriptionRepository,
	plans ports.PlanRepository,
	addresses ports.AddressRepository,
	gateway ports.PaymentGateway,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		orders:    orders,
		payments:  payments,
		subs:      subs,
		plans:     plans,
		addresses: addresses,
		gateway:   gateway,
		logger:    logger,
		now:       time.Now,
	}
}

// SubscriptionCheckout runs the full checkout flow for the given user.
func (s *CheckoutService) SubscriptionCheckout(ctx context.Context, user domain.UserContext, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	// Preconditions, in order, each with a distinct failure outcome.
	if user.UserID == uuid.Nil {
		return nil, domain.NewError(domain.ErrUnauthorized, "authentication required", "UNAUTHORIZED")
	}
	if user.Blocked {
		return nil, domain.NewError(domain.ErrBlockedUser, "account is blocked from purchasing", "BLOCKED_USER")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	plan, err := s.plans.FindBySlug(ctx, req.PlanSlug)
	if err != nil {
		if errors.Is(err, domain.ErrPlanNotFound) {
			return nil, domain.NewError(domain.ErrPlanNotFound,
				fmt.Sprintf("plan %q not found", req.PlanSlug), "PLAN_NOT_FOUND")
		}
		return nil, fmt.Errorf("plan lookup: %w", err)
	}

	occupied, err := s.subs.UserHasOccupied(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("subscription lookup: %w", err)
	}
	if occupied {
		return nil, domain.NewError(domain.ErrAlreadySubscribed,
			"user already has an active subscription", "ALREADY_SUBSCRIBED")
	}

	address, err := s.addresses.FindByIDForUser(ctx, req.AddressID, user.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrAddressNotFound) {
			return nil, domain.NewError(domain.ErrAddressNotFound, "address not found", "ADDRESS_NOT_FOUND")
		}
		return nil, fmt.Errorf("address lookup: %w", err)
	}

	// Authoritative price. Client-submitted totals are never trusted.
	total := domain.CheckoutTotal(plan.Price, req.ShippingPrice())

	now := s.now()
	planID := plan.ID
	order := &domain.Order{
		ID:        uuid.New(),
		UserID:    user.UserID,
		PlanID:    &planID,
		Subtotal:  plan.Price,
		Discount:  0,
		Shipping:  domain.RoundCents(req.ShippingPrice()),
		Total:     total,
		Status:    domain.OrderPending,
		Address:   address.Snapshot(),
		CreatedAt: now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	payment := &domain.Payment{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Provider:  providerMercadoPago,
		Amount:    total,
		Status:    domain.PaymentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.logger.Info("checkout started",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", user.UserID.String()),
		zap.String("plan", plan.Slug),
		zap.String("method", req.PaymentData.Method),
		zap.Float64("total", total))

	if req.PaymentData.IsCard() {
		return s.cardCheckout(ctx, user, plan, order, payment, req.PaymentData)
	}
	return s.pixCheckout(ctx, user, order, payment, plan)
}

// pixCheckout creates a one-time PIX charge and returns the QR materials.
// The Payment stays PENDING: PIX confirmation is asynchronous and arrives
// through the webhook receiver, which also activates the subscription.
func (s *CheckoutService) pixCheckout(ctx context.Context, user domain.UserContext, order *domain.Order, payment *domain.Payment, plan *domain.Plan) (*domain.CheckoutResult, error) {
	expiry := s.now().Add(pixExpiryWindow)
	charge, err := s.gateway.CreatePixCharge(ctx, ports.PixChargeRequest{
		Amount:            order.Total,
		Description:       "Doende Club - " + plan.Name,
		PayerEmail:        user.Email,
		ExternalReference: order.ID.String(),
		IdempotencyKey:    s.idempotencyKey(order.ID),
		ExpiresAt:         expiry,
	})
	if err != nil {
		s.failPayment(ctx, payment, err.Error())
		s.logger.Error("pix charge failed",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		// The Order stays PENDING for manual reconciliation.
		return nil, gatewayError(err, "failed to create PIX charge", "PIX_ERROR")
	}

	if charge.ExpiresAt.IsZero() {
		charge.ExpiresAt = expiry
	}
	payment.GatewayID = charge.GatewayID
	payment.PixQRCode = charge.QRCode
	payment.PixQRCodeBase64 = charge.QRCodeBase64
	payment.PixTicketURL = charge.TicketURL
	payment.PixExpiresAt = &charge.ExpiresAt
	payment.UpdatedAt = s.now()
	if err := s.payments.Update(ctx, payment); err != nil {
		return nil, fmt.Errorf("persist pix payment: %w", err)
	}

	return &domain.CheckoutResult{
		Status:    domain.CheckoutStatusPending,
		OrderID:   order.ID,
		PaymentID: payment.ID,
		Pix: &domain.PixCheckout{
			GatewayID:    charge.GatewayID,
			QRCode:       charge.QRCode,
			QRCodeBase64: charge.QRCodeBase64,
			TicketURL:    charge.TicketURL,
			ExpiresAt:    charge.ExpiresAt,
		},
	}, nil
}

// cardCheckout runs the charge-then-schedule flow: charge the card now, and
// only after the money is captured try to provision the recurring agreement
// starting one cycle in the future. Agreement failure never revokes the
// access the user already paid for; it is surfaced as a warning instead.
func (s *CheckoutService) cardCheckout(ctx context.Context, user domain.UserContext, plan *domain.Plan, order *domain.Order, payment *domain.Payment, pd domain.PaymentData) (*domain.CheckoutResult, error) {
	charge, err := s.gateway.CreateCardCharge(ctx, ports.CardChargeRequest{
		Amount:               order.Total,
		Description:          "Doende Club - " + plan.Name,
		Token:                pd.Token,
		PaymentMethodID:      pd.PaymentMethodID,
		IssuerID:             pd.IssuerID,
		Installments:         pd.Installments,
		PayerEmail:           pd.PayerEmail,
		IdentificationType:   pd.IdentificationType,
		IdentificationNumber: pd.IdentificationNumber,
		ExternalReference:    order.ID.String(),
		IdempotencyKey:       s.idempotencyKey(order.ID),
	})
	if err != nil {
		// The true outcome is unknown; the Payment stays PENDING rather
		// than guessing, and an explicit confirmation signal is required
		// to move it.
		s.logger.Error("card charge outcome unknown",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return nil, gatewayError(err, "payment processing error", "GATEWAY_ERROR")
	}

	switch charge.Status {
	case ports.ChargeRejected:
		payment.GatewayID = charge.GatewayID
		payment.StatusDetail = charge.StatusDetail
		payment.CardLastFour = charge.CardLastFour
		payment.CardBrand = charge.CardBrand
		s.failPayment(ctx, payment, charge.StatusDetail)
		s.logger.Info("card charge rejected",
			zap.String("order_id", order.ID.String()),
			zap.String("detail", charge.StatusDetail))
		code := charge.RejectionCode
		if code == "" {
			code = "CARD_REJECTED"
		}
		msg := charge.RejectionMessage
		if msg == "" {
			msg = "payment was rejected"
		}
		return nil, domain.NewError(domain.ErrPaymentRejected, msg, code)

	case ports.ChargeApproved:
		// Handled below.

	default:
		// in_process, pending, or a status the adapter did not recognize.
		// Only an explicit approval activates anything; everything else
		// waits for the gateway's confirmation signal.
		payment.GatewayID = charge.GatewayID
		payment.StatusDetail = charge.StatusDetail
		payment.UpdatedAt = s.now()
		if err := s.payments.Update(ctx, payment); err != nil {
			return nil, fmt.Errorf("persist in-process payment: %w", err)
		}
		return &domain.CheckoutResult{
			Status:    domain.CheckoutStatusInProcess,
			OrderID:   order.ID,
			PaymentID: payment.ID,
		}, nil
	}

	// Approved: mark Payment and Order paid before any further gateway call.
	now := s.now()
	payment.Status = domain.PaymentPaid
	payment.GatewayID = charge.GatewayID
	payment.StatusDetail = charge.StatusDetail
	payment.CardLastFour = charge.CardLastFour
	payment.CardBrand = charge.CardBrand
	payment.UpdatedAt = now
	if err := s.payments.Update(ctx, payment); err != nil {
		return nil, fmt.Errorf("persist paid payment: %w", err)
	}
	if err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderPaid); err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}

	sub := &domain.Subscription{
		ID:        uuid.New(),
		UserID:    user.UserID,
		PlanID:    plan.ID,
		Status:    domain.SubscriptionActive,
		StartedAt: now,
	}
	warning := ""
	periodEnd := domain.AddMonthClamped(now)

	agreement, err := s.gateway.CreateRecurringAgreement(ctx, ports.AgreementRequest{
		Reason:            "Doende Club - " + plan.Name,
		Amount:            order.Total,
		CardToken:         pd.Token,
		PayerEmail:        pd.PayerEmail,
		ExternalReference: sub.ID.String(),
		StartDate:         now.Add(firstAgreementDelay),
	})
	if err != nil {
		// Money is already captured: activate locally anyway and flag
		// that recurring collection must be fixed out-of-band.
		s.logger.Error("recurring agreement creation failed",
			zap.String("order_id", order.ID.String()),
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err))
		warning = agreementWarning
	} else {
		sub.AgreementID = agreement.ID
		if !agreement.NextPaymentDate.IsZero() {
			periodEnd = agreement.NextPaymentDate
		}
	}
	sub.NextBillingAt = &periodEnd

	if err := s.subs.Create(ctx, sub); err != nil {
		// Payment captured but the subscription row could not be written
		// (e.g. a concurrent checkout won the uniqueness race). Nothing is
		// rolled back; the paid order and payment remain for reconciliation.
		s.logger.Error("subscription creation failed after captured payment",
			zap.String("order_id", order.ID.String()),
			zap.String("user_id", user.UserID.String()),
			zap.Error(err))
		if errors.Is(err, domain.ErrAlreadySubscribed) {
			return nil, domain.NewError(domain.ErrAlreadySubscribed,
				"payment captured but user already holds a subscription; contact support",
				"ALREADY_SUBSCRIBED")
		}
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	cycle := &domain.SubscriptionCycle{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		Status:         domain.CyclePaid,
		PeriodStart:    now,
		PeriodEnd:      periodEnd,
		Amount:         order.Total,
		PaymentID:      payment.ID,
	}
	if err := s.subs.CreateCycle(ctx, cycle); err != nil {
		return nil, fmt.Errorf("create subscription cycle: %w", err)
	}

	s.logger.Info("subscription activated",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("agreement_id", sub.AgreementID),
		zap.Bool("agreement_provisioned", sub.AgreementID != ""))

	card := &domain.CardCheckout{
		SubscriptionID:   sub.ID,
		AgreementID:      sub.AgreementID,
		GatewayPaymentID: charge.GatewayID,
		CardLastFour:     charge.CardLastFour,
		CardBrand:        charge.CardBrand,
	}
	if sub.AgreementID != "" {
		card.NextPaymentDate = &periodEnd
	}
	return &domain.CheckoutResult{
		Status:    domain.CheckoutStatusApproved,
		OrderID:   order.ID,
		PaymentID: payment.ID,
		Card:      card,
		Warning:   warning,
	}, nil
}

// PaymentStatus returns the current payment state of an order owned by the
// user, so the storefront can poll while a PIX charge awaits confirmation.
func (s *CheckoutService) PaymentStatus(ctx context.Context, user domain.UserContext, orderID uuid.UUID) (*domain.Payment, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != user.UserID {
		return nil, domain.NewError(domain.ErrOrderNotFound, "order not found", "ORDER_NOT_FOUND")
	}
	payment, err := s.payments.GetLatestByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.NewError(domain.ErrOrderNotFound, "order has no payment", "ORDER_NOT_FOUND")
	}
	return payment, nil
}

// failPayment moves the payment to its terminal FAILED state. Every failure
// path leaves a persisted trace; a write error here is logged, not returned,
// because the caller is already propagating the original failure.
func (s *CheckoutService) failPayment(ctx context.Context, payment *domain.Payment, detail string) {
	payment.Status = domain.PaymentFailed
	if payment.StatusDetail == "" {
		payment.StatusDetail = detail
	}
	payment.UpdatedAt = s.now()
	if err := s.payments.Update(ctx, payment); err != nil {
		s.logger.Error("failed to persist FAILED payment",
			zap.String("payment_id", payment.ID.String()), zap.Error(err))
	}
}

// idempotencyKey derives a freshness-scoped key for a gateway call. This is
// advisory: a retry of the whole checkout builds a new key, so it reduces
// duplicate charges on transport-level retries rather than guaranteeing
// strict dedup.
func (s *CheckoutService) idempotencyKey(ref uuid.UUID) string {
	return fmt.Sprintf("%s-%d", ref, s.now().UnixNano())
}

// gatewayError keeps an adapter-supplied code when present, else wraps the
// failure under fallbackCode.
func gatewayError(err error, message, fallbackCode string) error {
	var derr *domain.Error
	if errors.As(err, &derr) && derr.Code != "" {
		return derr
	}
	return domain.NewError(domain.ErrGatewayError, message, fallbackCode)
}
