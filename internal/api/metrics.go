package api

import "github.com/prometheus/client_golang/prometheus"

const outcomeOK = "ok"

type metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "issuetracker_operations_total",
				Help: "Issue operations by operation (search, create, update, delete) and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "issuetracker_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds by method.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"method"},
		),
	}
	reg.MustRegister(m.operations, m.duration)
	return m
}

func (m *metrics) observe(operation, outcome string) {
	m.operations.WithLabelValues(operation, outcome).Inc()
}
