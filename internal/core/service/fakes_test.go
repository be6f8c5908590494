package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/doende/doende-payments/internal/core/domain"
	"github.com/doende/doende-payments/internal/core/ports"
)

// In-memory fakes for the persistence and gateway ports.

type fakeOrderRepo struct {
	orders    map[uuid.UUID]*domain.Order
	createErr error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uuid.UUID]*domain.Order)}
}

func (f *fakeOrderRepo) Create(_ context.Context, order *domain.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *order
	return &cp, nil
}

func (f *fakeOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.OrderStatus) error {
	f.orders[id].Status = status
	return nil
}

type fakePaymentRepo struct {
	payments  map[uuid.UUID]*domain.Payment
	createErr error
	updateErr error
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[uuid.UUID]*domain.Payment)}
}

func (f *fakePaymentRepo) Create(_ context.Context, payment *domain.Payment) error {
	if f.createErr != nil {
		return f.createErr
	}
	cp := *payment
	f.payments[payment.ID] = &cp
	return nil
}

func (f *fakePaymentRepo) Update(_ context.Context, payment *domain.Payment) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	cp := *payment
	f.payments[payment.ID] = &cp
	return nil
}

func (f *fakePaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	payment, ok := f.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *payment
	return &cp, nil
}

func (f *fakePaymentRepo) GetByGatewayID(_ context.Context, gatewayID string) (*domain.Payment, error) {
	for _, p := range f.payments {
		if p.GatewayID == gatewayID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePaymentRepo) GetLatestByOrderID(_ context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	var latest *domain.Payment
	for _, p := range f.payments {
		if p.OrderID != orderID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

type fakeSubscriptionRepo struct {
	subs        map[uuid.UUID]*domain.Subscription
	cycles      []domain.SubscriptionCycle
	hasOccupied bool
	createErr   error
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: make(map[uuid.UUID]*domain.Subscription)}
}

func (f *fakeSubscriptionRepo) Create(_ context.Context, sub *domain.Subscription) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.subs {
		if existing.UserID == sub.UserID && existing.Status.Occupied() {
			return domain.ErrAlreadySubscribed
		}
	}
	cp := *sub
	f.subs[sub.ID] = &cp
	return nil
}

func (f *fakeSubscriptionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Subscription, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeSubscriptionRepo) GetByUser(_ context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	for _, sub := range f.subs {
		if sub.UserID == userID && sub.Status.Occupied() {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSubscriptionRepo) GetByAgreementID(_ context.Context, agreementID string) (*domain.Subscription, error) {
	for _, sub := range f.subs {
		if sub.AgreementID == agreementID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSubscriptionRepo) UserHasOccupied(_ context.Context, userID uuid.UUID) (bool, error) {
	if f.hasOccupied {
		return true, nil
	}
	for _, sub := range f.subs {
		if sub.UserID == userID && sub.Status.Occupied() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSubscriptionRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.SubscriptionStatus, canceledAt *time.Time) error {
	sub := f.subs[id]
	sub.Status = status
	if canceledAt != nil {
		sub.CanceledAt = canceledAt
	}
	return nil
}

func (f *fakeSubscriptionRepo) SetNextBilling(_ context.Context, id uuid.UUID, next time.Time) error {
	f.subs[id].NextBillingAt = &next
	return nil
}

func (f *fakeSubscriptionRepo) CreateCycle(_ context.Context, cycle *domain.SubscriptionCycle) error {
	f.cycles = append(f.cycles, *cycle)
	return nil
}

func (f *fakeSubscriptionRepo) ListCycles(_ context.Context, subscriptionID uuid.UUID) ([]domain.SubscriptionCycle, error) {
	var out []domain.SubscriptionCycle
	for _, c := range f.cycles {
		if c.SubscriptionID == subscriptionID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSubscriptionRepo) single() *domain.Subscription {
	for _, sub := range f.subs {
		return sub
	}
	return nil
}

type fakePlanRepo struct {
	plans map[string]*domain.Plan
}

func newFakePlanRepo(plans ...*domain.Plan) *fakePlanRepo {
	f := &fakePlanRepo{plans: make(map[string]*domain.Plan)}
	for _, p := range plans {
		f.plans[p.Slug] = p
	}
	return f
}

func (f *fakePlanRepo) FindBySlug(_ context.Context, slug string) (*domain.Plan, error) {
	plan, ok := f.plans[slug]
	if !ok || !plan.IsActive {
		return nil, domain.ErrPlanNotFound
	}
	return plan, nil
}

type fakeAddressRepo struct {
	addresses map[uuid.UUID]*domain.Address
}

func newFakeAddressRepo(addresses ...*domain.Address) *fakeAddressRepo {
	f := &fakeAddressRepo{addresses: make(map[uuid.UUID]*domain.Address)}
	for _, a := range addresses {
		f.addresses[a.ID] = a
	}
	return f
}

func (f *fakeAddressRepo) FindByIDForUser(_ context.Context, id, userID uuid.UUID) (*domain.Address, error) {
	address, ok := f.addresses[id]
	if !ok || address.UserID != userID {
		return nil, domain.ErrAddressNotFound
	}
	return address, nil
}

type fakeGateway struct {
	pixResult *ports.PixCharge
	pixErr    error
	pixCalls  []ports.PixChargeRequest
	onPix     func()

	cardResult *ports.CardCharge
	cardErr    error
	cardCalls  []ports.CardChargeRequest

	agreementResult *ports.Agreement
	agreementErr    error
	agreementCalls  []ports.AgreementRequest

	getChargeResult    *ports.CardCharge
	getChargeErr       error
	getChargeCalls     []string
	getAgreementResult *ports.Agreement
	getAgreementErr    error

	pauseErr, resumeErr, cancelErr     error
	pausedIDs, resumedIDs, canceledIDs []string
}

func (f *fakeGateway) CreatePixCharge(_ context.Context, req ports.PixChargeRequest) (*ports.PixCharge, error) {
	f.pixCalls = append(f.pixCalls, req)
	if f.onPix != nil {
		f.onPix()
	}
	if f.pixErr != nil {
		return nil, f.pixErr
	}
	return f.pixResult, nil
}

func (f *fakeGateway) CreateCardCharge(_ context.Context, req ports.CardChargeRequest) (*ports.CardCharge, error) {
	f.cardCalls = append(f.cardCalls, req)
	if f.cardErr != nil {
		return nil, f.cardErr
	}
	return f.cardResult, nil
}

func (f *fakeGateway) CreateRecurringAgreement(_ context.Context, req ports.AgreementRequest) (*ports.Agreement, error) {
	f.agreementCalls = append(f.agreementCalls, req)
	if f.agreementErr != nil {
		return nil, f.agreementErr
	}
	return f.agreementResult, nil
}

func (f *fakeGateway) GetCharge(_ context.Context, id string) (*ports.CardCharge, error) {
	f.getChargeCalls = append(f.getChargeCalls, id)
	if f.getChargeErr != nil {
		return nil, f.getChargeErr
	}
	return f.getChargeResult, nil
}

func (f *fakeGateway) GetAgreement(_ context.Context, _ string) (*ports.Agreement, error) {
	if f.getAgreementErr != nil {
		return nil, f.getAgreementErr
	}
	return f.getAgreementResult, nil
}

func (f *fakeGateway) PauseAgreement(_ context.Context, id string) error {
	f.pausedIDs = append(f.pausedIDs, id)
	return f.pauseErr
}

func (f *fakeGateway) ResumeAgreement(_ context.Context, id string) error {
	f.resumedIDs = append(f.resumedIDs, id)
	return f.resumeErr
}

func (f *fakeGateway) CancelAgreement(_ context.Context, id string) error {
	f.canceledIDs = append(f.canceledIDs, id)
	return f.cancelErr
}

type fakeValidator struct {
	valid bool
}

func (f *fakeValidator) ValidateSignature(_, _, _ string) bool {
	return f.valid
}
