package downgrade_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/downgrade"
	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestSweeper(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.subscribe(t, plan.Starter)
	f.publish(t, 5)
	enforcer := downgrade.NewEnforcer(f.store)
	_, err := enforcer.HandleDowngrade(context.Background(), downgrade.Request{MerchantID: shop, From: plan.Starter, To: plan.Free})
	require.NoError(t, err)
	f.subscribe(t, plan.Free)
	f.clock.Advance(5 * 24 * time.Hour)

	reg := prometheus.NewRegistry()
	sweeper := downgrade.NewSweeper(enforcer, time.Hour, downgrade.WithSweeperRegisterer(reg))

	res := sweeper.Sweep(context.Background())
	assert.Equal(t, downgrade.SweepResult{Processed: 1, Unpublished: 4}, res)
	assert.Equal(t, 1.0, counterValue(t, reg, "biypod_downgrade_requests_processed_total"))
	assert.Equal(t, 4.0, counterValue(t, reg, "biypod_downgrade_products_unpublished_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "biypod_downgrade_sweeps_total"))
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	sweeper := downgrade.NewSweeper(downgrade.NewEnforcer(newFixture(t).store), time.Millisecond,
		downgrade.WithSweeperRegisterer(prometheus.NewRegistry()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestNewSweeperPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { downgrade.NewSweeper(nil, time.Hour) })
	assert.Panics(t, func() {
		downgrade.NewSweeper(downgrade.NewEnforcer(newFixture(t).store), 0)
	})
}
