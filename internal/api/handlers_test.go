package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/doende/doende-payments/internal/core/domain"
	"github.com/doende/doende-payments/internal/core/ports"
	"github.com/doende/doende-payments/internal/core/service"
)

type stubOrderRepo struct {
	orders    map[uuid.UUID]*domain.Order
	createErr error
}

func (s *stubOrderRepo) Create(_ context.Context, order *domain.Order) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.orders[id], nil
}

func (s *stubOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.OrderStatus) error {
	if order, ok := s.orders[id]; ok {
		order.Status = status
	}
	return nil
}

type stubPaymentRepo struct {
	payments map[uuid.UUID]*domain.Payment
}

func (s *stubPaymentRepo) Create(_ context.Context, payment *domain.Payment) error {
	s.payments[payment.ID] = payment
	return nil
}

func (s *stubPaymentRepo) Update(_ context.Context, payment *domain.Payment) error {
	s.payments[payment.ID] = payment
	return nil
}

func (s *stubPaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.payments[id], nil
}

func (s *stubPaymentRepo) GetByGatewayID(_ context.Context, gatewayID string) (*domain.Payment, error) {
	for _, p := range s.payments {
		if p.GatewayID == gatewayID {
			return p, nil
		}
	}
	return nil, nil
}

func (s *stubPaymentRepo) GetLatestByOrderID(_ context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	for _, p := range s.payments {
		if p.OrderID == orderID {
			return p, nil
		}
	}
	return nil, nil
}

type stubSubscriptionRepo struct {
	subs   map[uuid.UUID]*domain.Subscription
	cycles []domain.SubscriptionCycle
}

func (s *stubSubscriptionRepo) Create(_ context.Context, sub *domain.Subscription) error {
	s.subs[sub.ID] = sub
	return nil
}

func (s *stubSubscriptionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Subscription, error) {
	return s.subs[id], nil
}

func (s *stubSubscriptionRepo) GetByUser(_ context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	for _, sub := range s.subs {
		if sub.UserID == userID && sub.Status.Occupied() {
			return sub, nil
		}
	}
	return nil, nil
}

func (s *stubSubscriptionRepo) GetByAgreementID(_ context.Context, agreementID string) (*domain.Subscription, error) {
	for _, sub := range s.subs {
		if sub.AgreementID == agreementID {
			return sub, nil
		}
	}
	return nil, nil
}

func (s *stubSubscriptionRepo) UserHasOccupied(_ context.Context, userID uuid.UUID) (bool, error) {
	sub, _ := s.GetByUser(context.Background(), userID)
	return sub != nil, nil
}

func (s *stubSubscriptionRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.SubscriptionStatus, canceledAt *time.Time) error {
	if sub, ok := s.subs[id]; ok {
		sub.Status = status
		if canceledAt != nil {
			sub.CanceledAt = canceledAt
		}
	}
	return nil
}

func (s *stubSubscriptionRepo) SetNextBilling(_ context.Context, id uuid.UUID, next time.Time) error {
	if sub, ok := s.subs[id]; ok {
		sub.NextBillingAt = &next
	}
	return nil
}

func (s *stubSubscriptionRepo) CreateCycle(_ context.Context, cycle *domain.SubscriptionCycle) error {
	s.cycles = append(s.cycles, *cycle)
	return nil
}

func (s *stubSubscriptionRepo) ListCycles(_ context.Context, subscriptionID uuid.UUID) ([]domain.SubscriptionCycle, error) {
	var out []domain.SubscriptionCycle
	for _, c := range s.cycles {
		if c.SubscriptionID == subscriptionID {
			out = append(out, c)
		}
	}
	return out, nil
}

type stubPlanRepo struct {
	plan *domain.Plan
}

func (s *stubPlanRepo) FindBySlug(_ context.Context, slug string) (*domain.Plan, error) {
	if s.plan == nil || s.plan.Slug != slug {
		return nil, domain.ErrPlanNotFound
	}
	return s.plan, nil
}

type stubAddressRepo struct {
	address *domain.Address
}

func (s *stubAddressRepo) FindByIDForUser(_ context.Context, id, userID uuid.UUID) (*domain.Address, error) {
	if s.address == nil || s.address.ID != id || s.address.UserID != userID {
		return nil, domain.ErrAddressNotFound
	}
	return s.address, nil
}

type stubGateway struct {
	pixResult *ports.PixCharge
	pixErr    error

	cardResult *ports.CardCharge
	cardErr    error

	agreementResult *ports.Agreement
	agreementErr    error

	charge *ports.CardCharge
}

func (s *stubGateway) CreatePixCharge(_ context.Context, _ ports.PixChargeRequest) (*ports.PixCharge, error) {
	return s.pixResult, s.pixErr
}

func (s *stubGateway) CreateCardCharge(_ context.Context, _ ports.CardChargeRequest) (*ports.CardCharge, error) {
	return s.cardResult, s.cardErr
}

func (s *stubGateway) CreateRecurringAgreement(_ context.Context, _ ports.AgreementRequest) (*ports.Agreement, error) {
	return s.agreementResult, s.agreementErr
}

func (s *stubGateway) GetCharge(_ context.Context, _ string) (*ports.CardCharge, error) {
	return s.charge, nil
}

func (s *stubGateway) GetAgreement(_ context.Context, _ string) (*ports.Agreement, error) {
	return s.agreementResult, s.agreementErr
}

func (s *stubGateway) PauseAgreement(_ context.Context, _ string) error  { return nil }
func (s *stubGateway) ResumeAgreement(_ context.Context, _ string) error { return nil }
func (s *stubGateway) CancelAgreement(_ context.Context, _ string) error { return nil }

type stubValidator struct {
	valid bool
}

func (s *stubValidator) ValidateSignature(_, _, _ string) bool { return s.valid }

type apiFixture struct {
	router    *gin.Engine
	orders    *stubOrderRepo
	payments  *stubPaymentRepo
	subs      *stubSubscriptionRepo
	gateway   *stubGateway
	validator *stubValidator
	userID    uuid.UUID
	plan      *domain.Plan
	addressID uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	userID := uuid.New()
	plan := &domain.Plan{ID: uuid.New(), Slug: "doende-bronze", Name: "Doende Bronze", Price: 49.90, IsActive: true}
	address := &domain.Address{ID: uuid.New(), UserID: userID, Street: "Rua das Flores", City: "Sao Paulo"}

	f := &apiFixture{
		orders:    &stubOrderRepo{orders: make(map[uuid.UUID]*domain.Order)},
		payments:  &stubPaymentRepo{payments: make(map[uuid.UUID]*domain.Payment)},
		subs:      &stubSubscriptionRepo{subs: make(map[uuid.UUID]*domain.Subscription)},
		gateway:   &stubGateway{},
		validator: &stubValidator{valid: true},
		userID:    userID,
		plan:      plan,
		addressID: address.ID,
	}

	logger := zap.NewNop()
	checkout := service.NewCheckoutService(
		f.orders, f.payments, f.subs,
		&stubPlanRepo{plan: plan}, &stubAddressRepo{address: address},
		f.gateway, logger,
	)
	subscriptions := service.NewSubscriptionService(f.subs, f.gateway, logger)
	webhooks := service.NewWebhookService(f.orders, f.payments, f.subs, f.gateway, f.validator, logger)

	handler := NewHandler(checkout, subscriptions, webhooks, logger)
	f.router = SetupRouter(handler, logger, gin.TestMode, "")
	return f
}

func (f *apiFixture) do(method, path string, body any, authed bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-User-ID", f.userID.String())
		req.Header.Set("X-User-Email", "smoker@doende.com.br")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func checkoutBody(f *apiFixture, paymentData map[string]any) map[string]any {
	return map[string]any{
		"planSlug":    f.plan.Slug,
		"addressId":   f.addressID,
		"paymentData": paymentData,
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func dataOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data envelope")
	return data
}

func TestCheckoutEndpoint_PixEnvelope(t *testing.T) {
	f := newAPIFixture(t)
	expires := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)
	f.gateway.pixResult = &ports.PixCharge{
		GatewayID:    "12345",
		QRCode:       "00020126pixcode",
		QRCodeBase64: "aGVsbG8=",
		TicketURL:    "https://mercadopago.com.br/ticket/12345",
		ExpiresAt:    expires,
	}

	w := f.do(http.MethodPost, "/api/v1/checkout/subscription",
		checkoutBody(f, map[string]any{"method": "pix"}), true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	data := dataOf(t, body)
	assert.Equal(t, "pending", data["status"])
	assert.NotEmpty(t, data["orderId"])
	assert.NotEmpty(t, data["paymentId"])

	pref, ok := data["paymentPreference"].(map[string]any)
	require.True(t, ok, "missing paymentPreference")
	assert.Equal(t, "12345", pref["id"])
	assert.Equal(t, "00020126pixcode", pref["qrCode"])
	assert.Equal(t, "00020126pixcode", pref["pixCopyPaste"])
	assert.Equal(t, "aGVsbG8=", pref["qrCodeBase64"])
	assert.Equal(t, "https://mercadopago.com.br/ticket/12345", pref["initPoint"])
	assert.NotEmpty(t, pref["expirationDate"])
}

func TestCheckoutEndpoint_CardEnvelope(t *testing.T) {
	f := newAPIFixture(t)
	f.gateway.cardResult = &ports.CardCharge{
		GatewayID: "777", Status: ports.ChargeApproved, CardLastFour: "4321", CardBrand: "master",
	}
	f.gateway.agreementResult = &ports.Agreement{
		ID: "pre-1", Status: "authorized", NextPaymentDate: time.Now().AddDate(0, 1, 0),
	}

	w := f.do(http.MethodPost, "/api/v1/checkout/subscription",
		checkoutBody(f, map[string]any{
			"method":          "credit_card",
			"token":           "tok_abc123",
			"paymentMethodId": "master",
			"installments":    1,
			"payerEmail":      "smoker@doende.com.br",
		}), true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	data := dataOf(t, body)
	assert.Equal(t, "approved", data["status"])
	assert.NotEmpty(t, data["subscriptionId"])
	assert.Equal(t, "pre-1", data["mpSubscriptionId"])
	assert.Equal(t, "777", data["mpPaymentId"])
	assert.Equal(t, "4321", data["cardLastFour"])
	assert.Equal(t, "master", data["cardBrand"])
	assert.NotEmpty(t, data["nextPaymentDate"])
	assert.NotContains(t, data, "warning")
}

func TestCheckoutEndpoint_CardWarningEnvelope(t *testing.T) {
	f := newAPIFixture(t)
	f.gateway.cardResult = &ports.CardCharge{
		GatewayID: "778", Status: ports.ChargeApproved, CardLastFour: "4321", CardBrand: "visa",
	}
	f.gateway.agreementErr = errors.New("preapproval endpoint down")

	w := f.do(http.MethodPost, "/api/v1/checkout/subscription",
		checkoutBody(f, map[string]any{
			"method":          "credit_card",
			"token":           "tok_abc123",
			"paymentMethodId": "visa",
			"installments":    1,
			"payerEmail":      "smoker@doende.com.br",
		}), true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := dataOf(t, decodeBody(t, w))
	assert.Equal(t, "approved", data["status"])
	assert.Equal(t, "", data["mpSubscriptionId"])
	assert.NotEmpty(t, data["warning"])
	assert.NotContains(t, data, "nextPaymentDate")
}

func TestCheckoutEndpoint_ErrorStatuses(t *testing.T) {
	t.Run("400 on invalid payment method with details", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(http.MethodPost, "/api/v1/checkout/subscription",
			checkoutBody(f, map[string]any{"method": "boleto"}), true)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "PAYMENT_VALIDATION_ERROR", body["errorCode"])
		assert.NotEmpty(t, body["details"])
	})

	t.Run("400 on malformed body", func(t *testing.T) {
		f := newAPIFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/subscription",
			bytes.NewReader([]byte("{not json")))
		req.Header.Set("X-User-ID", f.userID.String())
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeBody(t, w)["errorCode"])
	})

	t.Run("404 on unknown plan", func(t *testing.T) {
		f := newAPIFixture(t)
		body := checkoutBody(f, map[string]any{"method": "pix"})
		body["planSlug"] = "doende-platinum"
		w := f.do(http.MethodPost, "/api/v1/checkout/subscription", body, true)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "PLAN_NOT_FOUND", decodeBody(t, w)["errorCode"])
	})

	t.Run("502 on gateway failure", func(t *testing.T) {
		f := newAPIFixture(t)
		f.gateway.pixErr = errors.New("connection refused")
		w := f.do(http.MethodPost, "/api/v1/checkout/subscription",
			checkoutBody(f, map[string]any{"method": "pix"}), true)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "PIX_ERROR", decodeBody(t, w)["errorCode"])
	})

	t.Run("500 on unexpected persistence failure", func(t *testing.T) {
		f := newAPIFixture(t)
		f.orders.createErr = errors.New("connection reset")
		w := f.do(http.MethodPost, "/api/v1/checkout/subscription",
			checkoutBody(f, map[string]any{"method": "pix"}), true)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "INTERNAL_ERROR", decodeBody(t, w)["errorCode"])
	})

	t.Run("401 without session headers", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(http.MethodPost, "/api/v1/checkout/subscription",
			checkoutBody(f, map[string]any{"method": "pix"}), false)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UNAUTHORIZED", decodeBody(t, w)["errorCode"])
	})
}

func TestPaymentStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.gateway.pixResult = &ports.PixCharge{GatewayID: "12345", QRCode: "qr"}

	w := f.do(http.MethodPost, "/api/v1/checkout/subscription",
		checkoutBody(f, map[string]any{"method": "pix"}), true)
	require.Equal(t, http.StatusOK, w.Code)
	orderID := dataOf(t, decodeBody(t, w))["orderId"].(string)

	w = f.do(http.MethodGet, "/api/v1/orders/"+orderID+"/payment-status", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, decodeBody(t, w))
	assert.Equal(t, orderID, data["orderId"])
	assert.Equal(t, "PENDING", data["status"])

	t.Run("400 on malformed order id", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/orders/not-a-uuid/payment-status", nil, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeBody(t, w)["errorCode"])
	})

	t.Run("404 on someone else's order", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID+"/payment-status", nil)
		req.Header.Set("X-User-ID", uuid.NewString())
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "ORDER_NOT_FOUND", decodeBody(t, w)["errorCode"])
	})
}

func TestSubscriptionEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	sub := &domain.Subscription{
		ID:     uuid.New(),
		UserID: f.userID,
		PlanID: f.plan.ID,
		Status: domain.SubscriptionActive,
	}
	f.subs.subs[sub.ID] = sub

	w := f.do(http.MethodGet, "/api/v1/subscriptions/me", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])

	w = f.do(http.MethodPost, "/api/v1/subscriptions/me/pause", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.SubscriptionPaused, sub.Status)

	w = f.do(http.MethodPost, "/api/v1/subscriptions/me/resume", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.SubscriptionActive, sub.Status)

	w = f.do(http.MethodPost, "/api/v1/subscriptions/me/cancel", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.SubscriptionPendingCancellation, sub.Status)

	t.Run("400 on invalid transition", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/subscriptions/me/pause", nil, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_SUBSCRIPTION_STATE", decodeBody(t, w)["errorCode"])
	})
}

func TestWebhookEndpoint(t *testing.T) {
	webhookBody := func(typ, dataID string) map[string]any {
		return map[string]any{
			"id":   1,
			"type": typ,
			"data": map[string]any{"id": dataID},
		}
	}

	t.Run("401 on invalid signature", func(t *testing.T) {
		f := newAPIFixture(t)
		f.validator.valid = false
		w := f.do(http.MethodPost, "/webhooks/mercadopago", webhookBody("payment", "123"), false)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "INVALID_SIGNATURE", decodeBody(t, w)["errorCode"])
	})

	t.Run("200 on accepted notification", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(http.MethodPost, "/webhooks/mercadopago", webhookBody("plan", "123"), false)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "processed", decodeBody(t, w)["status"])
	})

	t.Run("200 confirms a pending pix payment", func(t *testing.T) {
		f := newAPIFixture(t)
		f.gateway.pixResult = &ports.PixCharge{GatewayID: "555", QRCode: "qr"}
		w := f.do(http.MethodPost, "/api/v1/checkout/subscription",
			checkoutBody(f, map[string]any{"method": "pix"}), true)
		require.Equal(t, http.StatusOK, w.Code)

		f.gateway.charge = &ports.CardCharge{GatewayID: "555", Status: ports.ChargeApproved}
		w = f.do(http.MethodPost, "/webhooks/mercadopago", webhookBody("payment", "555"), false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "processed", decodeBody(t, w)["status"])
		assert.Len(t, f.subs.subs, 1)
	})
}
