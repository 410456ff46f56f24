package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authz",
		Name:      "decisions_total",
		Help:      "Total number of authz evaluations broken down by object and result.",
	}, []string{"object", "result"})

	decisionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "authz",
		Name:      "decision_latency_seconds",
		Help:      "Latency distribution for authz evaluations.",
		Buckets: []float64{
			0.0001, 0.0005, 0.001, 0.002,
			0.005, 0.01, 0.05, 0.1,
		},
	}, []string{"object", "result"})
)

func recordDecision(object string, allowed bool, latency time.Duration) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	labels := prometheus.Labels{
		"object": object,
		"result": result,
	}
	decisions.With(labels).Inc()
	decisionLatency.With(labels).Observe(latency.Seconds())
}
