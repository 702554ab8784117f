// internal/metrics/metrics.go
//
// Prometheus collectors exported on /metrics.
// Registered on the default registry at init via promauto.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crackcode_sessions_started_total",
		Help: "Successful logins.",
	})

	Guesses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crackcode_guesses_total",
		Help: "Guesses by result (match, miss, rejected).",
	}, []string{"result"})

	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crackcode_sessions_finished_total",
		Help: "Sessions reaching a terminal state.",
	}, []string{"status"})

	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crackcode_auth_failures_total",
		Help: "Refused tokens by reason.",
	}, []string{"reason"})

	CodeRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crackcode_code_rotations_total",
		Help: "Secret code rotations through the admin route.",
	})
)
