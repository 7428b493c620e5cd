package logger

import (
	"log/slog"
	"time"
)

// Error records err under "error". Returns an empty Attr for nil, which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Shop records the merchant's shop domain.
func Shop(shop string) slog.Attr {
	return slog.String("shop", shop)
}

// Plan records a plan tier.
func Plan(p string) slog.Attr {
	return slog.String("plan", p)
}

// SubscriptionID records a subscription id; empty for nil.
func SubscriptionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("subscription_id", id)
}

// ChargeID records a provider charge id.
func ChargeID(id string) slog.Attr {
	return slog.String("charge_id", id)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
