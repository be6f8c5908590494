package domain

import (
	"math"
	"time"
)

// RoundCents rounds a monetary amount to 2 decimals using half-up rounding
// at the cent level.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// CheckoutTotal computes the authoritative amount to charge for a
// subscription checkout. Client-submitted totals are never trusted; the
// only inputs are the server-side plan price and the selected shipping
// option price (0 when no option was selected).
func CheckoutTotal(planPrice, shippingPrice float64) float64 {
	return RoundCents(planPrice + shippingPrice)
}

// AddMonthClamped returns t plus one calendar month, clamping the day to
// the last day of the target month (Jan 31 -> Feb 28/29).
func AddMonthClamped(t time.Time) time.Time {
	y, m, d := t.Date()
	lastDay := time.Date(y, m+2, 0, 0, 0, 0, 0, t.Location()).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(y, m+1, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
