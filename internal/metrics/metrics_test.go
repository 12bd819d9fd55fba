package metrics_test

import (
	"testing"

	"github.com/jrsteele09/go-auth-link/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRegister_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))
	require.NoError(t, metrics.Register(reg))
}

func TestRegister_ExposesFlowMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	metrics.CallbackOutcomes.WithLabelValues("login", "done", "none").Inc()
	metrics.GuardDuplicates.WithLabelValues("login").Inc()
	metrics.ExchangeDuration.WithLabelValues("login", "ok").Observe(0.1)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["authlink_callback_outcomes_total"])
	require.True(t, names["authlink_guard_duplicates_total"])
	require.True(t, names["authlink_exchange_duration_seconds"])
}
