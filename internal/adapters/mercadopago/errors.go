package mercadopago

// rejection maps a Mercado Pago status_detail to a normalized internal code
// and a message suitable for direct display. Pure lookup, no business logic.
type rejection struct {
	Code    string
	Message string
}

var rejectionTable = map[string]rejection{
	"cc_rejected_insufficient_amount":      {"INSUFFICIENT_FUNDS", "The card has insufficient funds."},
	"cc_rejected_bad_filled_card_number":   {"INVALID_CARD_NUMBER", "Check the card number and try again."},
	"cc_rejected_bad_filled_security_code": {"INVALID_SECURITY_CODE", "Check the card security code and try again."},
	"cc_rejected_bad_filled_date":          {"INVALID_EXPIRY_DATE", "Check the card expiry date and try again."},
	"cc_rejected_bad_filled_other":         {"INVALID_CARD_DATA", "Check the card details and try again."},
	"cc_rejected_invalid_installments":     {"INVALID_INSTALLMENTS", "The card does not support this number of installments."},
	"cc_rejected_call_for_authorize":       {"CALL_FOR_AUTHORIZE", "The card issuer requires authorization for this charge."},
	"cc_rejected_card_disabled":            {"CARD_DISABLED", "The card is disabled. Contact the card issuer."},
	"cc_rejected_duplicated_payment":       {"DUPLICATED_PAYMENT", "A payment with the same amount was made moments ago."},
	"cc_rejected_high_risk":                {"REJECTED_HIGH_RISK", "The payment was declined. Try another payment method."},
	"cc_rejected_max_attempts":             {"MAX_ATTEMPTS", "Too many attempts with this card. Try again later."},
	"cc_rejected_blacklist":                {"CARD_REJECTED", "The payment could not be processed with this card."},
	"cc_rejected_other_reason":             {"CARD_REJECTED", "The card issuer declined the payment."},
}

// TranslateRejection maps a gateway status_detail onto a stable internal
// code plus a user-presentable message, falling back to a generic pair for
// unmapped details.
func TranslateRejection(statusDetail string) (code, message string) {
	if r, ok := rejectionTable[statusDetail]; ok {
		return r.Code, r.Message
	}
	return "CARD_REJECTED", "The payment was rejected. Check the card details or try another method."
}
