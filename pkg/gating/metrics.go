package gating

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	decisions *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "biypod",
			Subsystem: "gating",
			Name:      "decisions_total",
			Help:      "Plan gating decisions by outcome and reason",
		},
		[]string{"outcome", "reason"},
	)
	return &metrics{decisions: registerCounterVec(reg, decisions)}
}

func (m *metrics) observe(d Decision) {
	outcome := "deny"
	if d.Allow {
		outcome = "allow"
	}
	m.decisions.WithLabelValues(outcome, string(d.Reason)).Inc()
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
