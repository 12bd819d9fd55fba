package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Flow metrics. Labels never carry codes, tokens or user identifiers.
var (
	CallbackOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authlink_callback_outcomes_total",
		Help: "Callback handler outcomes by intent, terminal phase and reason",
	}, []string{"intent", "phase", "reason"})

	ExchangeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authlink_exchange_duration_seconds",
		Help:    "Latency of backend code exchange calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"intent", "result"})

	GuardDuplicates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authlink_guard_duplicates_total",
		Help: "Callback invocations short-circuited by the execution guard",
	}, []string{"intent"})
)

// Register registers the flow metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{CallbackOutcomes, ExchangeDuration, GuardDuplicates} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// Handler exposes the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
