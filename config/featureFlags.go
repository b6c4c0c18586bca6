package config

import (
	"os"
	"strings"
)

// AllowBackdatedPayments permits recording payments with a payment_date in
// the past. Defaults to on; tellers routinely key in yesterday's field
// collections. Turn it off for kiosks that must only post same-day.
//
// Set via env:
// - ALLOW_BACKDATED_PAYMENTS=false
func AllowBackdatedPayments() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("ALLOW_BACKDATED_PAYMENTS")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
