// Package metrics 协调服务的 prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"time"
)

const namespace = "mining_coordinator"

var (
	onlineSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "presence",
		Name:      "online_sessions",
		Help:      "Number of live participant sessions.",
	})
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "blocks",
		Name:      "submissions_total",
		Help:      "Count of solution submissions by result.",
	}, []string{"result"})
	signalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signaling",
		Name:      "signals_total",
		Help:      "Count of relayed signaling messages by kind and result.",
	}, []string{"kind", "result"})
	rewardsPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "rewards_paid_total",
		Help:      "Sum of reward amounts written by settlement.",
	})
	storeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Count of store operations.",
	}, []string{"operation", "status"})
	storeRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Duration of store operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

func SetOnlineSessions(n int) {
	onlineSessions.Set(float64(n))
}

func ObserveSubmission(result string) {
	submissionsTotal.WithLabelValues(result).Inc()
}

func ObserveSignal(kind, result string) {
	signalsTotal.WithLabelValues(kind, result).Inc()
}

func AddRewardsPaid(amount int64) {
	rewardsPaidTotal.Add(float64(amount))
}

func ObserveStore(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	storeRequestsTotal.WithLabelValues(operation, status).Inc()
	storeRequestDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
