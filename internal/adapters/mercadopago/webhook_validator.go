// Package mercadopago provides Mercado Pago webhook signature validation.
package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// WebhookValidator validates Mercado Pago webhook signatures against the
// account's webhook secret.
type WebhookValidator struct {
	secret string
}

// NewWebhookValidator creates a webhook validator with the shared secret.
func NewWebhookValidator(secret string) *WebhookValidator {
	return &WebhookValidator{secret: secret}
}

// ValidateSignature validates the x-signature header from Mercado Pago.
// See: https://www.mercadopago.com.br/developers/en/docs/your-integrations/notifications/webhooks
//
// The x-signature header contains: ts=<timestamp>,v1=<signature>
// The signature is HMAC-SHA256 of: id:<data.id>;request-id:<x-request-id>;ts:<timestamp>;
func (v *WebhookValidator) ValidateSignature(xSignature, xRequestID, dataID string) bool {
	if xSignature == "" || v.secret == "" {
		return false
	}

	ts, hash := parseSignatureHeader(xSignature)
	if ts == "" || hash == "" {
		return false
	}

	manifest := buildManifest(dataID, xRequestID, ts)
	expectedHash := calculateHMAC(manifest, v.secret)

	return hmac.Equal([]byte(hash), []byte(expectedHash))
}

// parseSignatureHeader extracts ts and v1 values from the x-signature header.
func parseSignatureHeader(header string) (ts, hash string) {
	tsRegex := regexp.MustCompile(`ts=([^,]+)`)
	v1Regex := regexp.MustCompile(`v1=([^,]+)`)

	tsMatch := tsRegex.FindStringSubmatch(header)
	if len(tsMatch) > 1 {
		ts = tsMatch[1]
	}

	v1Match := v1Regex.FindStringSubmatch(header)
	if len(v1Match) > 1 {
		hash = v1Match[1]
	}

	return ts, hash
}

// buildManifest constructs the string to be signed.
// Format: id:<data.id>;request-id:<x-request-id>;ts:<timestamp>;
func buildManifest(dataID, requestID, ts string) string {
	var parts []string

	if dataID != "" {
		parts = append(parts, "id:"+dataID)
	}
	if requestID != "" {
		parts = append(parts, "request-id:"+requestID)
	}
	if ts != "" {
		parts = append(parts, "ts:"+ts)
	}

	return strings.Join(parts, ";") + ";"
}

// calculateHMAC computes HMAC-SHA256 of the manifest.
func calculateHMAC(manifest, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(manifest))
	return hex.EncodeToString(h.Sum(nil))
}
