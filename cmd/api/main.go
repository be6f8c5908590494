// Doende Payments Service
//
// Entry point for the subscription checkout & recurring-billing service.
// It wires up all dependencies and starts the HTTP server.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/doende/doende-payments/config"
	"github.com/doende/doende-payments/internal/adapters/mercadopago"
	"github.com/doende/doende-payments/internal/adapters/postgres"
	"github.com/doende/doende-payments/internal/api"
	"github.com/doende/doende-payments/internal/core/service"
)

func main() {
	cfg := config.Load()

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Doende Payments Service", zap.String("port", cfg.Server.Port))

	if err := validateConfig(cfg, logger); err != nil {
		logger.Fatal("Configuration error", zap.Error(err))
	}

	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.Migrate(cfg.Database.MigrationsURL, cfg.Database.DSN); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Info("Database migrations completed")

	// Infrastructure layer
	gateway, err := mercadopago.NewAdapter(cfg.Gateway.AccessToken, cfg.Gateway.BackURL,
		logger.With(zap.String("component", "mercadopago")))
	if err != nil {
		logger.Fatal("Failed to create gateway adapter", zap.Error(err))
	}
	validator := mercadopago.NewWebhookValidator(cfg.Gateway.WebhookSecret)

	orderRepo := postgres.NewOrderRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)
	subscriptionRepo := postgres.NewSubscriptionRepository(db)
	planRepo := postgres.NewPlanRepository(db)
	addressRepo := postgres.NewAddressRepository(db)

	// Service layer
	checkoutService := service.NewCheckoutService(
		orderRepo, paymentRepo, subscriptionRepo, planRepo, addressRepo, gateway,
		logger.With(zap.String("component", "CheckoutService")))
	subscriptionService := service.NewSubscriptionService(
		subscriptionRepo, gateway,
		logger.With(zap.String("component", "SubscriptionService")))
	webhookService := service.NewWebhookService(
		orderRepo, paymentRepo, subscriptionRepo, gateway, validator,
		logger.With(zap.String("component", "WebhookService")))

	// API layer
	handler := api.NewHandler(checkoutService, subscriptionService, webhookService,
		logger.With(zap.String("component", "HTTPHandler")))
	router := api.SetupRouter(handler, logger, cfg.Server.GinMode, cfg.Server.InternalAPIKey)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	if err := server.Close(); err != nil {
		logger.Error("Error closing server", zap.Error(err))
	}
}

// validateConfig checks that required configuration values are set.
func validateConfig(cfg *config.Config, logger *zap.Logger) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Gateway.AccessToken == "" {
		return fmt.Errorf("MP_ACCESS_TOKEN is required")
	}
	if cfg.Gateway.WebhookSecret == "" {
		logger.Warn("MP_WEBHOOK_SECRET not set; webhook signatures will be rejected")
	}
	if cfg.Server.InternalAPIKey == "" {
		logger.Warn("INTERNAL_API_KEY not set; internal API authentication disabled")
	}
	return nil
}
