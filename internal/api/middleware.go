// Package api contains the HTTP handlers and routing for the billing service.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doende/doende-payments/internal/core/domain"
)

const userContextKey = "user_context"

// CORSMiddleware handles Cross-Origin Resource Sharing.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Requested-With")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware adds a unique request ID to each request.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// ZapLogger logs each request with structured fields.
func ZapLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")))
	}
}

// InternalAPIKeyMiddleware authenticates server-to-server calls from the
// storefront. Validation is skipped when no key is configured (development).
func InternalAPIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-Internal-API-Key") != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Success:   false,
				Error:     "invalid internal API key",
				ErrorCode: "UNAUTHORIZED",
			})
			return
		}
		c.Next()
	}
}

// AuthContextMiddleware extracts the authenticated session context the
// storefront forwards in headers. Missing user rejects as unauthorized;
// blocked accounts are rejected as forbidden.
func AuthContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := c.GetHeader("X-User-ID")
		if rawID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Success:   false,
				Error:     "authentication required",
				ErrorCode: "UNAUTHORIZED",
			})
			return
		}
		userID, err := uuid.Parse(rawID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Success:   false,
				Error:     "invalid user identifier",
				ErrorCode: "UNAUTHORIZED",
			})
			return
		}
		user := domain.UserContext{
			UserID:  userID,
			Email:   c.GetHeader("X-User-Email"),
			Blocked: c.GetHeader("X-User-Blocked") == "true",
		}
		if user.Blocked {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Success:   false,
				Error:     "account is blocked",
				ErrorCode: "BLOCKED_USER",
			})
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

// currentUser returns the session context set by AuthContextMiddleware.
func currentUser(c *gin.Context) domain.UserContext {
	if v, ok := c.Get(userContextKey); ok {
		if user, ok := v.(domain.UserContext); ok {
			return user
		}
	}
	return domain.UserContext{}
}
