// Package metrics holds the Prometheus collectors for login traffic. They
// live in a leaf package so oauth, login and api can all record into them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	LoginStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portier_login_started_total",
		Help: "Login attempts redirected to a provider.",
	}, []string{"provider"})

	LoginCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portier_login_completed_total",
		Help: "Login callbacks by outcome and failure kind.",
	}, []string{"provider", "outcome", "kind"})

	ProviderCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portier_provider_call_duration_seconds",
		Help:    "Latency of outbound token and profile calls.",
		Buckets: prometheus.ExponentialBuckets(0.025, 2, 10),
	}, []string{"provider", "operation"})
)

// Register registers the collectors on reg (or the default registerer if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{LoginStarted, LoginCompleted, ProviderCallDuration} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// ObserveProviderCall records the time since start for an outbound call.
func ObserveProviderCall(provider, operation string, start time.Time) {
	ProviderCallDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

// LoginSucceeded counts a completed login.
func LoginSucceeded(provider string) {
	LoginCompleted.WithLabelValues(provider, "success", "").Inc()
}

// LoginFailed counts a failed login by kind.
func LoginFailed(provider, kind string) {
	LoginCompleted.WithLabelValues(provider, "failure", kind).Inc()
}
