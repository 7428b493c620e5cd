package billing

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	charges *prometheus.CounterVec
	usage   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &metrics{
		charges: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biypod",
			Subsystem: "billing",
			Name:      "charges_created_total",
			Help:      "Provider charges created by plan and mode",
		}, []string{"plan", "test"})),
		usage: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biypod",
			Subsystem: "billing",
			Name:      "usage_records_total",
			Help:      "Order usage records by result",
		}, []string{"result"})),
	}
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
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
