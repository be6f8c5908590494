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

// WebhookService processes asynchronous confirmations from the gateway:
// PIX payment approval, recurring charges, and agreement state changes.
// Handlers are idempotent; the gateway retries deliveries.
type WebhookService struct {
	orders    ports.OrderRepository
	payments  ports.PaymentRepository
	subs      ports.SubscriptionRepository
	gateway   ports.PaymentGateway
	validator ports.WebhookValidator
	logger    *zap.Logger

	now func() time.Time
}

// NewWebhookService creates a webhook service.
func NewWebhookService(
	orders ports.OrderRepository,
	payments ports.PaymentRepository,
	subs ports.SubscriptionRepository,
	gateway ports.PaymentGateway,
	validator ports.WebhookValidator,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		orders:    orders,
		payments:  payments,
		subs:      subs,
		gateway:   gateway,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessNotification validates the signature and dispatches on the
// notification type. Unknown types are acknowledged and ignored.
func (s *WebhookService) ProcessNotification(ctx context.Context, n domain.WebhookNotification, xSignature, xRequestID string) error {
	if !s.validator.ValidateSignature(xSignature, xRequestID, n.DataID) {
		s.logger.Warn("webhook signature validation failed",
			zap.String("type", n.Type), zap.String("data_id", n.DataID))
		return domain.NewError(domain.ErrUnauthorized, "invalid webhook signature", "INVALID_SIGNATURE")
	}

	switch n.Type {
	case domain.NotificationPayment:
		return s.processPayment(ctx, n.DataID)
	case domain.NotificationRecurringCharge:
		return s.processRecurringCharge(ctx, n.DataID)
	case domain.NotificationAgreement:
		return s.processAgreementChange(ctx, n.DataID)
	default:
		s.logger.Info("ignoring webhook type", zap.String("type", n.Type))
		return nil
	}
}

// processPayment confirms a checkout charge. For PIX checkouts this is the
// moment the subscription is created: the synchronous flow only persisted
// the PENDING payment and the QR materials.
func (s *WebhookService) processPayment(ctx context.Context, gatewayID string) error {
	charge, err := s.gateway.GetCharge(ctx, gatewayID)
	if err != nil {
		return fmt.Errorf("get charge %s: %w", gatewayID, err)
	}

	payment, err := s.payments.GetByGatewayID(ctx, gatewayID)
	if err != nil {
		return fmt.Errorf("payment lookup %s: %w", gatewayID, err)
	}
	if payment == nil {
		s.logger.Warn("notification for unknown payment", zap.String("gateway_id", gatewayID))
		return nil
	}
	if payment.Status != domain.PaymentPending {
		// Already settled; redelivery is a no-op.
		return nil
	}

	switch charge.Status {
	case ports.ChargeRejected:
		payment.StatusDetail = charge.StatusDetail
		payment.Status = domain.PaymentFailed
		payment.UpdatedAt = s.now()
		if err := s.payments.Update(ctx, payment); err != nil {
			return fmt.Errorf("persist failed payment: %w", err)
		}
		return nil
	case ports.ChargeApproved:
	default:
		// Still pending at the gateway; wait for the next notification.
		return nil
	}

	now := s.now()
	payment.Status = domain.PaymentPaid
	payment.StatusDetail = charge.StatusDetail
	payment.UpdatedAt = now
	if err := s.payments.Update(ctx, payment); err != nil {
		return fmt.Errorf("persist paid payment: %w", err)
	}

	order, err := s.orders.GetByID(ctx, payment.OrderID)
	if err != nil {
		return fmt.Errorf("order lookup: %w", err)
	}
	if order == nil {
		return fmt.Errorf("payment %s references missing order %s", payment.ID, payment.OrderID)
	}
	if order.Status == domain.OrderPending {
		if err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderPaid); err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
	}

	if order.PlanID == nil {
		// Not a subscription checkout; nothing to activate.
		return nil
	}

	periodEnd := domain.AddMonthClamped(now)
	sub := &domain.Subscription{
		ID:            uuid.New(),
		UserID:        order.UserID,
		PlanID:        *order.PlanID,
		Status:        domain.SubscriptionActive,
		NextBillingAt: &periodEnd,
		StartedAt:     now,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrAlreadySubscribed) {
			// Redelivered confirmation or a concurrently activated
			// subscription; the payment is recorded either way.
			s.logger.Warn("subscription already exists on confirmation",
				zap.String("user_id", order.UserID.String()))
			return nil
		}
		return fmt.Errorf("create subscription: %w", err)
	}
	if err := s.subs.CreateCycle(ctx, &domain.SubscriptionCycle{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		Status:         domain.CyclePaid,
		PeriodStart:    now,
		PeriodEnd:      periodEnd,
		Amount:         payment.Amount,
		PaymentID:      payment.ID,
	}); err != nil {
		return fmt.Errorf("create subscription cycle: %w", err)
	}

	s.logger.Info("subscription activated from payment confirmation",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("order_id", order.ID.String()))
	return nil
}

// processRecurringCharge records a new billing cycle funded by a recurring
// charge the gateway collected. The charge's external reference carries the
// subscription id the agreement was provisioned with.
func (s *WebhookService) processRecurringCharge(ctx context.Context, gatewayID string) error {
	charge, err := s.gateway.GetCharge(ctx, gatewayID)
	if err != nil {
		return fmt.Errorf("get charge %s: %w", gatewayID, err)
	}
	if charge.Status != ports.ChargeApproved {
		s.logger.Info("recurring charge not approved",
			zap.String("gateway_id", gatewayID), zap.String("status", charge.Status))
		return nil
	}

	if existing, err := s.payments.GetByGatewayID(ctx, gatewayID); err != nil {
		return fmt.Errorf("payment lookup %s: %w", gatewayID, err)
	} else if existing != nil {
		// Redelivery; the cycle was already recorded.
		return nil
	}

	subID, err := uuid.Parse(charge.ExternalReference)
	if err != nil {
		s.logger.Warn("recurring charge without subscription reference",
			zap.String("gateway_id", gatewayID),
			zap.String("external_reference", charge.ExternalReference))
		return nil
	}
	sub, err := s.subs.GetByID(ctx, subID)
	if err != nil {
		return fmt.Errorf("subscription lookup %s: %w", subID, err)
	}
	if sub == nil {
		s.logger.Warn("recurring charge for unknown subscription",
			zap.String("subscription_id", subID.String()))
		return nil
	}

	now := s.now()
	payment := &domain.Payment{
		ID:           uuid.New(),
		Provider:     providerMercadoPago,
		Amount:       charge.Amount,
		Status:       domain.PaymentPaid,
		GatewayID:    charge.GatewayID,
		StatusDetail: charge.StatusDetail,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return fmt.Errorf("create recurring payment: %w", err)
	}

	periodStart := now
	if sub.NextBillingAt != nil && sub.NextBillingAt.Before(now) {
		periodStart = *sub.NextBillingAt
	}
	periodEnd := domain.AddMonthClamped(periodStart)
	if sub.AgreementID != "" {
		// The agreement's reported next payment date is authoritative for
		// the cycle boundary when the gateway provides it.
		if agreement, err := s.gateway.GetAgreement(ctx, sub.AgreementID); err == nil && !agreement.NextPaymentDate.IsZero() {
			periodEnd = agreement.NextPaymentDate
		}
	}

	if err := s.subs.CreateCycle(ctx, &domain.SubscriptionCycle{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		Status:         domain.CyclePaid,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		Amount:         charge.Amount,
		PaymentID:      payment.ID,
	}); err != nil {
		return fmt.Errorf("create cycle: %w", err)
	}
	if err := s.subs.SetNextBilling(ctx, sub.ID, periodEnd); err != nil {
		return fmt.Errorf("advance next billing: %w", err)
	}

	s.logger.Info("recurring cycle recorded",
		zap.String("subscription_id", sub.ID.String()),
		zap.Time("period_end", periodEnd))
	return nil
}

// processAgreementChange mirrors gateway-side agreement transitions (e.g.
// the provider auto-cancelling after exhausted retries) onto the local row.
func (s *WebhookService) processAgreementChange(ctx context.Context, agreementID string) error {
	agreement, err := s.gateway.GetAgreement(ctx, agreementID)
	if err != nil {
		return fmt.Errorf("get agreement %s: %w", agreementID, err)
	}
	sub, err := s.subs.GetByAgreementID(ctx, agreementID)
	if err != nil {
		return fmt.Errorf("subscription lookup by agreement %s: %w", agreementID, err)
	}
	if sub == nil {
		s.logger.Warn("agreement change for unknown subscription",
			zap.String("agreement_id", agreementID))
		return nil
	}

	var status domain.SubscriptionStatus
	switch agreement.Status {
	case "cancelled":
		status = domain.SubscriptionCanceled
	case "paused":
		status = domain.SubscriptionPaused
	case "authorized":
		status = domain.SubscriptionActive
	default:
		s.logger.Info("ignoring agreement status",
			zap.String("agreement_id", agreementID),
			zap.String("status", agreement.Status))
		return nil
	}
	if sub.Status == status {
		return nil
	}
	// Local pending-cancellation wins over a gateway "cancelled" echo: the
	// user keeps access until the period ends.
	if sub.Status == domain.SubscriptionPendingCancellation && status == domain.SubscriptionCanceled {
		return nil
	}

	var canceledAt *time.Time
	if status == domain.SubscriptionCanceled {
		t := s.now()
		canceledAt = &t
	}
	if err := s.subs.UpdateStatus(ctx, sub.ID, status, canceledAt); err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	s.logger.Info("subscription status mirrored from gateway",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("status", string(status)))
	return nil
}
