// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreOperations counts gateway operations by op and result (ok|error).
	StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Key-path store operations by operation and result.",
	}, []string{"op", "result"})

	// StoreLatency observes gateway operation latency.
	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rollcall",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Latency of key-path store operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	// Subscriptions is the number of open live-read subscriptions.
	Subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rollcall",
		Subsystem: "store",
		Name:      "subscriptions",
		Help:      "Open live-read subscriptions.",
	})

	// CheckIns counts check-in submissions by outcome.
	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "checkins_total",
		Help:      "Check-in submissions by outcome (success, location_error, validation_error, store_error, busy).",
	}, []string{"outcome"})

	// Sessions is the number of live admin sessions.
	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rollcall",
		Subsystem: "session",
		Name:      "active",
		Help:      "Authenticated admin sessions currently alive.",
	})

	// SessionExpirations counts sessions ended by the inactivity timeout.
	SessionExpirations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rollcall",
		Subsystem: "session",
		Name:      "expired_total",
		Help:      "Admin sessions logged out for inactivity.",
	})

	// Exports counts generated export files by format.
	Exports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "exports_total",
		Help:      "Attendance export files generated, by format.",
	}, []string{"format"})
)

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
