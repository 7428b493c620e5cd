package billing

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Service.
type Option func(*Service)

// WithDowngrader enables grace-period handling when a merchant picks a lower tier.
func WithDowngrader(d Downgrader) Option {
	return func(s *Service) { s.downgrader = d }
}

// WithForceTestCharges marks every charge as a test charge.
func WithForceTestCharges(force bool) Option {
	return func(s *Service) { s.forceTest = force }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRegisterer sets where billing counters are registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Service) { s.reg = reg }
}
