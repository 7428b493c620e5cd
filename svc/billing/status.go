package billing

import (
	"github.com/Lleewss/Biypod-merchant-v2/pkg/billing"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/subscription"
)

// StatusFromCharge maps a provider charge status onto the subscription
// lifecycle. PENDING, ACCEPTED and FROZEN have no mapping; the subscription
// stays where it is.
func StatusFromCharge(s billing.ChargeStatus) (subscription.Status, bool) {
	switch s {
	case billing.ChargeActive:
		return subscription.StatusActive, true
	case billing.ChargeDeclined, billing.ChargeExpired:
		return subscription.StatusExpired, true
	case billing.ChargeCancelled:
		return subscription.StatusCancelled, true
	}
	return "", false
}
