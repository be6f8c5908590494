package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doende/doende-payments/internal/core/domain"
	"github.com/doende/doende-payments/internal/core/service"
)

// Handler contains the HTTP handlers for the billing API.
type Handler struct {
	checkout      *service.CheckoutService
	subscriptions *service.SubscriptionService
	webhooks      *service.WebhookService
	logger        *zap.Logger
}

// NewHandler creates an API handler with the services it fronts.
func NewHandler(
	checkout *service.CheckoutService,
	subscriptions *service.SubscriptionService,
	webhooks *service.WebhookService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		checkout:      checkout,
		subscriptions: subscriptions,
		webhooks:      webhooks,
		logger:        logger,
	}
}

// ErrorResponse is the error envelope returned on every failure.
type ErrorResponse struct {
	Success   bool                `json:"success"`
	Error     string              `json:"error"`
	ErrorCode string              `json:"errorCode,omitempty"`
	Details   []domain.FieldError `json:"details,omitempty"`
}

// SuccessResponse is the envelope returned on success.
type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// pixPreference is the QR material block of a PIX checkout response.
type pixPreference struct {
	ID             string    `json:"id"`
	QRCode         string    `json:"qrCode"`
	QRCodeBase64   string    `json:"qrCodeBase64"`
	PixCopyPaste   string    `json:"pixCopyPaste"`
	InitPoint      string    `json:"initPoint"`
	ExpirationDate time.Time `json:"expirationDate"`
}

// SubscriptionCheckout handles POST /api/v1/checkout/subscription.
func (h *Handler) SubscriptionCheckout(c *gin.Context) {
	var req domain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success:   false,
			Error:     "Invalid request body: " + err.Error(),
			ErrorCode: "VALIDATION_ERROR",
		})
		return
	}

	result, err := h.checkout.SubscriptionCheckout(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	data := gin.H{
		"orderId":   result.OrderID,
		"paymentId": result.PaymentID,
		"status":    result.Status,
	}
	switch {
	case result.Pix != nil:
		data["paymentPreference"] = pixPreference{
			ID:             result.Pix.GatewayID,
			QRCode:         result.Pix.QRCode,
			QRCodeBase64:   result.Pix.QRCodeBase64,
			PixCopyPaste:   result.Pix.QRCode,
			InitPoint:      result.Pix.TicketURL,
			ExpirationDate: result.Pix.ExpiresAt,
		}
	case result.Card != nil:
		data["subscriptionId"] = result.Card.SubscriptionID
		data["mpSubscriptionId"] = result.Card.AgreementID
		data["mpPaymentId"] = result.Card.GatewayPaymentID
		data["cardLastFour"] = result.Card.CardLastFour
		data["cardBrand"] = result.Card.CardBrand
		if result.Card.NextPaymentDate != nil {
			data["nextPaymentDate"] = result.Card.NextPaymentDate
		}
	}
	if result.Warning != "" {
		data["warning"] = result.Warning
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: data})
}

// GetSubscription handles GET /api/v1/subscriptions/me.
func (h *Handler) GetSubscription(c *gin.Context) {
	view, err := h.subscriptions.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: view})
}

// PauseSubscription handles POST /api/v1/subscriptions/me/pause.
func (h *Handler) PauseSubscription(c *gin.Context) {
	sub, err := h.subscriptions.Pause(c.Request.Context(), currentUser(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: sub})
}

// ResumeSubscription handles POST /api/v1/subscriptions/me/resume.
func (h *Handler) ResumeSubscription(c *gin.Context) {
	sub, err := h.subscriptions.Resume(c.Request.Context(), currentUser(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: sub})
}

// CancelSubscription handles POST /api/v1/subscriptions/me/cancel.
func (h *Handler) CancelSubscription(c *gin.Context) {
	sub, err := h.subscriptions.Cancel(c.Request.Context(), currentUser(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: sub})
}

// PaymentStatus handles GET /api/v1/orders/:id/payment-status, the poll
// endpoint for PIX checkouts awaiting confirmation.
func (h *Handler) PaymentStatus(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success:   false,
			Error:     "invalid order id",
			ErrorCode: "VALIDATION_ERROR",
		})
		return
	}

	payment, err := h.checkout.PaymentStatus(c.Request.Context(), currentUser(c), orderID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: gin.H{
		"orderId":   orderID,
		"paymentId": payment.ID,
		"status":    payment.Status,
	}})
}

// WebhookRequest is the notification body sent by Mercado Pago.
type WebhookRequest struct {
	ID     int64  `json:"id"`
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
	LiveMode    bool   `json:"live_mode"`
	DateCreated string `json:"date_created"`
}

// HandleWebhook handles POST /webhooks/mercadopago.
func (h *Handler) HandleWebhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Mercado Pago sends several formats; acknowledge and log.
		h.logger.Warn("webhook parsing error", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	notification := domain.WebhookNotification{
		ID:          req.ID,
		Type:        req.Type,
		Action:      req.Action,
		DataID:      req.Data.ID,
		LiveMode:    req.LiveMode,
		DateCreated: req.DateCreated,
	}

	err := h.webhooks.ProcessNotification(c.Request.Context(), notification,
		c.GetHeader("x-signature"), c.GetHeader("x-request-id"))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Success:   false,
				Error:     "invalid webhook signature",
				ErrorCode: "INVALID_SIGNATURE",
			})
			return
		}
		h.logger.Error("webhook processing error",
			zap.String("type", req.Type), zap.Error(err))
		// Still 200 so the gateway does not retry a poison message forever.
		c.JSON(http.StatusOK, gin.H{"status": "processed_with_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "doende-payments",
	})
}

// handleServiceError maps domain errors to HTTP responses. Unexpected
// errors are logged with context and surfaced as a generic internal error.
func (h *Handler) handleServiceError(c *gin.Context, err error) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		statusCode := http.StatusBadRequest

		switch {
		case errors.Is(derr.Err, domain.ErrUnauthorized):
			statusCode = http.StatusUnauthorized
		case errors.Is(derr.Err, domain.ErrBlockedUser):
			statusCode = http.StatusForbidden
		case errors.Is(derr.Err, domain.ErrPlanNotFound),
			errors.Is(derr.Err, domain.ErrAddressNotFound),
			errors.Is(derr.Err, domain.ErrSubscriptionNotFound),
			errors.Is(derr.Err, domain.ErrOrderNotFound):
			statusCode = http.StatusNotFound
		case errors.Is(derr.Err, domain.ErrGatewayError):
			statusCode = http.StatusBadGateway
		}

		c.JSON(statusCode, ErrorResponse{
			Success:   false,
			Error:     derr.Message,
			ErrorCode: derr.Code,
			Details:   derr.Fields,
		})
		return
	}

	h.logger.Error("unexpected service error",
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", c.GetString("request_id")),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Success:   false,
		Error:     "Internal server error",
		ErrorCode: "INTERNAL_ERROR",
	})
}
