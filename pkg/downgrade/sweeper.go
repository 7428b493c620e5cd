package downgrade

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweeperConfig controls the background enforcement loop.
type SweeperConfig struct {
	Interval  time.Duration `env:"DOWNGRADE_SWEEP_INTERVAL" envDefault:"1h"`
	BatchSize int           `env:"DOWNGRADE_SWEEP_BATCH_SIZE" envDefault:"100"`
}

// Sweeper periodically enforces plan change requests whose grace period ended.
type Sweeper struct {
	enforcer *Enforcer
	interval time.Duration
	log      *slog.Logger

	runs        *prometheus.CounterVec
	processed   prometheus.Counter
	unpublished prometheus.Counter
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*sweeperOptions)

type sweeperOptions struct {
	reg prometheus.Registerer
	log *slog.Logger
}

// WithSweeperRegisterer registers sweep metrics with reg instead of the default registry.
func WithSweeperRegisterer(reg prometheus.Registerer) SweeperOption {
	return func(o *sweeperOptions) { o.reg = reg }
}

func WithSweeperLogger(log *slog.Logger) SweeperOption {
	return func(o *sweeperOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// NewSweeper creates a Sweeper ticking every interval. Panics if enforcer is nil
// or the interval is not positive.
func NewSweeper(enforcer *Enforcer, interval time.Duration, opts ...SweeperOption) *Sweeper {
	if enforcer == nil {
		panic("downgrade: Enforcer is required")
	}
	if interval <= 0 {
		panic("downgrade: sweep interval must be positive")
	}

	o := sweeperOptions{reg: prometheus.DefaultRegisterer, log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.reg == nil {
		o.reg = prometheus.DefaultRegisterer
	}

	return &Sweeper{
		enforcer: enforcer,
		interval: interval,
		log:      o.log,
		runs: registerCounterVec(o.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biypod",
			Subsystem: "downgrade",
			Name:      "sweeps_total",
			Help:      "Downgrade enforcement sweeps by result",
		}, []string{"result"})),
		processed: registerCounter(o.reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "biypod",
			Subsystem: "downgrade",
			Name:      "requests_processed_total",
			Help:      "Plan change requests enforced after their grace period",
		})),
		unpublished: registerCounter(o.reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "biypod",
			Subsystem: "downgrade",
			Name:      "products_unpublished_total",
			Help:      "Products unpublished by downgrade enforcement",
		})),
	}
}

// Run sweeps once immediately and then on every tick. It blocks until ctx is
// cancelled and always returns nil; sweep failures are logged and retried on
// the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.InfoContext(ctx, "downgrade sweeper started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.InfoContext(ctx, "downgrade sweeper stopped")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one enforcement pass and records its metrics.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	res, err := s.enforcer.EnforceDue(ctx)
	s.processed.Add(float64(res.Processed))
	s.unpublished.Add(float64(res.Unpublished))

	if err != nil {
		s.runs.WithLabelValues("error").Inc()
		s.log.ErrorContext(ctx, "downgrade sweep finished with errors",
			slog.Int("processed", res.Processed),
			slog.Int("failed", res.Failed),
			slog.Any("error", err),
		)
		return res
	}

	s.runs.WithLabelValues("ok").Inc()
	if res.Processed > 0 || res.Deferred > 0 {
		s.log.InfoContext(ctx, "downgrade sweep finished",
			slog.Int("processed", res.Processed),
			slog.Int("unpublished", res.Unpublished),
			slog.Int("deferred", res.Deferred),
		)
	}
	return res
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) prometheus.Counter {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
