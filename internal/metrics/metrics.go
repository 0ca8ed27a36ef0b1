package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hitl",
			Name:      "approval_requests_total",
			Help:      "Total number of approval requests resolved, partitioned by final state.",
		},
		[]string{"state"},
	)

	responseSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hitl",
			Name:      "approval_response_seconds",
			Help:      "Latency between request creation and its terminal transition.",
			Buckets:   []float64{0.5, 1, 5, 15, 60, 300, 900, 1800, 3600},
		},
	)

	timeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hitl",
			Name:      "approval_timeouts_total",
			Help:      "Total number of approval requests that hit their timeout.",
		},
	)
)

// Register attaches the approval collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{requestsTotal, responseSeconds, timeoutsTotal}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveOutcome records a terminal transition and its response latency.
func ObserveOutcome(state string, duration time.Duration) {
	requestsTotal.WithLabelValues(state).Inc()
	if duration < 0 {
		duration = 0
	}
	responseSeconds.Observe(duration.Seconds())
}

// ObserveTimeout records a timer expiry.
func ObserveTimeout() {
	timeoutsTotal.Inc()
}
