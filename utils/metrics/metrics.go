// Package metrics holds the Prometheus collectors shared across the API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayRequests counts calls to the QR gateway by endpoint and outcome (ok, error)
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tuition",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Calls made to the QR payment gateway.",
	}, []string{"endpoint", "outcome"})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tuition",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Latency of QR gateway calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	GatewayLogins = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tuition",
		Subsystem: "gateway",
		Name:      "logins_total",
		Help:      "Successful gateway authentications.",
	})

	// Settlements counts settlement transitions by method and outcome
	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tuition",
		Subsystem: "billing",
		Name:      "settlements_total",
		Help:      "Settlement outcomes (requested, confirmed, failed, mismatch).",
	}, []string{"method", "outcome"})

	Callbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tuition",
		Subsystem: "billing",
		Name:      "gateway_callbacks_total",
		Help:      "Inbound gateway callbacks by processing status.",
	}, []string{"status"})

	CronRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tuition",
		Subsystem: "cron",
		Name:      "runs_total",
		Help:      "Background job executions.",
	}, []string{"job", "status"})
)
