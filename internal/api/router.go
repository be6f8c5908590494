package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter configures the Gin router with all routes and middleware.
func SetupRouter(handler *Handler, logger *zap.Logger, ginMode, internalAPIKey string) *gin.Engine {
	gin.SetMode(ginMode)

	router := gin.New()

	router.Use(ZapLogger(logger))
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RequestIDMiddleware())

	// Health check endpoint (no auth required)
	router.GET("/health", handler.Health)

	// API v1 routes: server-to-server calls from the storefront, which
	// forwards the authenticated session context in headers.
	v1 := router.Group("/api/v1")
	v1.Use(InternalAPIKeyMiddleware(internalAPIKey))
	v1.Use(AuthContextMiddleware())
	{
		v1.POST("/checkout/subscription", handler.SubscriptionCheckout)
		v1.GET("/orders/:id/payment-status", handler.PaymentStatus)

		subs := v1.Group("/subscriptions/me")
		{
			subs.GET("", handler.GetSubscription)
			subs.POST("/pause", handler.PauseSubscription)
			subs.POST("/resume", handler.ResumeSubscription)
			subs.POST("/cancel", handler.CancelSubscription)
		}
	}

	// Webhook endpoint is called by Mercado Pago, so no session context;
	// security is handled by validating the webhook signature.
	router.POST("/webhooks/mercadopago", handler.HandleWebhook)

	return router
}
