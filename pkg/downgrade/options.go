package downgrade

import (
	"log/slog"
	"time"
)

// Option configures an Enforcer.
type Option func(*Enforcer)

func WithNotifier(n Notifier) Option {
	return func(e *Enforcer) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithGracePeriod overrides the five-day grace window.
func WithGracePeriod(d time.Duration) Option {
	return func(e *Enforcer) {
		if d > 0 {
			e.grace = d
		}
	}
}

// WithBatchSize sets how many due requests EnforceDue reads per page.
func WithBatchSize(n int) Option {
	return func(e *Enforcer) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Enforcer) {
		if log != nil {
			e.log = log
		}
	}
}
