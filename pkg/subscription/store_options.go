package subscription

import (
	"log/slog"
	"time"
)

// StoreOption configures a Store instance.
type StoreOption func(*Store)

// WithClock overrides the time source. Returned times are normalised to UTC.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = func() time.Time { return now().UTC() }
		}
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(log *slog.Logger) StoreOption {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}
