package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/doende/doende-payments/internal/core/domain"
	"github.com/doende/doende-payments/internal/core/ports"
)

// SubscriptionView is a subscription together with its billing cycles.
type SubscriptionView struct {
	Subscription domain.Subscription        `json:"subscription"`
	Cycles       []domain.SubscriptionCycle `json:"cycles"`
}

// SubscriptionService implements the pause/resume/cancel operations on an
// existing subscription. The gateway agreement is updated first; the local
// row only changes after the gateway accepted the transition.
type SubscriptionService struct {
	subs    ports.SubscriptionRepository
	gateway ports.PaymentGateway
	logger  *zap.Logger

	now func() time.Time
}

// NewSubscriptionService creates a subscription service.
func NewSubscriptionService(subs ports.SubscriptionRepository, gateway ports.PaymentGateway, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		subs:    subs,
		gateway: gateway,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the user's subscription with its cycles.
func (s *SubscriptionService) Get(ctx context.Context, user domain.UserContext) (*SubscriptionView, error) {
	sub, err := s.findOwned(ctx, user)
	if err != nil {
		return nil, err
	}
	cycles, err := s.subs.ListCycles(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	return &SubscriptionView{Subscription: *sub, Cycles: cycles}, nil
}

// Pause stops collection on the user's active subscription.
func (s *SubscriptionService) Pause(ctx context.Context, user domain.UserContext) (*domain.Subscription, error) {
	sub, err := s.findOwned(ctx, user)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubscriptionActive {
		return nil, domain.NewError(domain.ErrValidation,
			"only an active subscription can be paused", "INVALID_SUBSCRIPTION_STATE")
	}
	if sub.AgreementID != "" {
		if err := s.gateway.PauseAgreement(ctx, sub.AgreementID); err != nil {
			return nil, gatewayError(err, "failed to pause recurring billing", "GATEWAY_ERROR")
		}
	}
	if err := s.subs.UpdateStatus(ctx, sub.ID, domain.SubscriptionPaused, nil); err != nil {
		return nil, fmt.Errorf("update subscription status: %w", err)
	}
	sub.Status = domain.SubscriptionPaused
	s.logger.Info("subscription paused", zap.String("subscription_id", sub.ID.String()))
	return sub, nil
}

// Resume reauthorizes collection on a paused subscription.
func (s *SubscriptionService) Resume(ctx context.Context, user domain.UserContext) (*domain.Subscription, error) {
	sub, err := s.findOwned(ctx, user)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubscriptionPaused {
		return nil, domain.NewError(domain.ErrValidation,
			"only a paused subscription can be resumed", "INVALID_SUBSCRIPTION_STATE")
	}
	if sub.AgreementID != "" {
		if err := s.gateway.ResumeAgreement(ctx, sub.AgreementID); err != nil {
			return nil, gatewayError(err, "failed to resume recurring billing", "GATEWAY_ERROR")
		}
	}
	if err := s.subs.UpdateStatus(ctx, sub.ID, domain.SubscriptionActive, nil); err != nil {
		return nil, fmt.Errorf("update subscription status: %w", err)
	}
	sub.Status = domain.SubscriptionActive
	s.logger.Info("subscription resumed", zap.String("subscription_id", sub.ID.String()))
	return sub, nil
}

// Cancel cancels the gateway agreement and marks the subscription
// PENDING_CANCELLATION: paid access runs until the end of the current
// cycle, and the period-end transition to CANCELED happens out-of-band.
func (s *SubscriptionService) Cancel(ctx context.Context, user domain.UserContext) (*domain.Subscription, error) {
	sub, err := s.findOwned(ctx, user)
	if err != nil {
		return nil, err
	}
	switch sub.Status {
	case domain.SubscriptionActive, domain.SubscriptionPaused:
	default:
		return nil, domain.NewError(domain.ErrValidation,
			"subscription is not cancellable in its current state", "INVALID_SUBSCRIPTION_STATE")
	}
	if sub.AgreementID != "" {
		if err := s.gateway.CancelAgreement(ctx, sub.AgreementID); err != nil {
			return nil, gatewayError(err, "failed to cancel recurring billing", "GATEWAY_ERROR")
		}
	}
	canceledAt := s.now()
	if err := s.subs.UpdateStatus(ctx, sub.ID, domain.SubscriptionPendingCancellation, &canceledAt); err != nil {
		return nil, fmt.Errorf("update subscription status: %w", err)
	}
	sub.Status = domain.SubscriptionPendingCancellation
	sub.CanceledAt = &canceledAt
	s.logger.Info("subscription cancellation requested",
		zap.String("subscription_id", sub.ID.String()))
	return sub, nil
}

func (s *SubscriptionService) findOwned(ctx context.Context, user domain.UserContext) (*domain.Subscription, error) {
	sub, err := s.subs.GetByUser(ctx, user.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return nil, domain.NewError(domain.ErrSubscriptionNotFound,
				"subscription not found", "SUBSCRIPTION_NOT_FOUND")
		}
		return nil, fmt.Errorf("subscription lookup: %w", err)
	}
	if sub == nil {
		return nil, domain.NewError(domain.ErrSubscriptionNotFound,
			"subscription not found", "SUBSCRIPTION_NOT_FOUND")
	}
	return sub, nil
}
