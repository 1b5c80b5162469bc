package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements MetricsRecorder with Prometheus collectors.
type PrometheusRecorder struct {
	Handled            *prometheus.CounterVec
	Skipped            *prometheus.CounterVec
	RecoveryLatency    *prometheus.HistogramVec
	StrategyExecutions *prometheus.CounterVec
	StrategyLatency    *prometheus.HistogramVec
}

// Compile-time interface check.
var _ MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder registers recovery collectors on reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		Handled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_handled_total",
				Help: "Total number of recovery runs that executed strategies",
			},
			[]string{"strategy", "success"},
		),
		Skipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_skipped_total",
				Help: "Total number of recovery requests turned away",
			},
			[]string{"reason"},
		),
		RecoveryLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recovery_latency_seconds",
				Help:    "Recovery run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		StrategyExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recovery_strategy_executions_total",
				Help: "Total number of strategy executions",
			},
			[]string{"strategy", "success"},
		),
		StrategyLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recovery_strategy_latency_seconds",
				Help:    "Strategy execution latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
	}
}

// RecordRecovery implements MetricsRecorder.
func (p *PrometheusRecorder) RecordRecovery(_ context.Context, strategy string, success bool, duration time.Duration) {
	p.Handled.WithLabelValues(strategy, strconv.FormatBool(success)).Inc()
	p.RecoveryLatency.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordSkipped implements MetricsRecorder.
func (p *PrometheusRecorder) RecordSkipped(_ context.Context, reason string) {
	p.Skipped.WithLabelValues(reason).Inc()
}

// RecordStrategyExecution implements MetricsRecorder.
func (p *PrometheusRecorder) RecordStrategyExecution(_ context.Context, strategy string, success bool, duration time.Duration) {
	p.StrategyExecutions.WithLabelValues(strategy, strconv.FormatBool(success)).Inc()
	p.StrategyLatency.WithLabelValues(strategy).Observe(duration.Seconds())
}
