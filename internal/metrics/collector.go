// Package metrics provides internal metrics collection for the negotiation
// engine. This package is internal and should not be imported by external
// projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records negotiation engine metrics. A nil *Collector is valid
// and records nothing, so wiring metrics stays optional.
type Collector struct {
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec

	agentCallsTotal  *prometheus.CounterVec
	escalationsTotal *prometheus.CounterVec
	retriesTotal     prometheus.Counter
	conflictsCreated prometheus.Counter

	inflightAttempts prometheus.Gauge
	queueDepth       prometheus.Gauge

	logger *zap.Logger
}

// NewCollector creates and registers the engine metrics under the given
// namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negotiation_attempts_total",
			Help:      "Negotiation attempts by outcome",
		},
		[]string{"outcome"},
	)

	c.attemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "negotiation_attempt_duration_seconds",
			Help:      "Duration of negotiation attempts",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	c.agentCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_calls_total",
			Help:      "Agent capability calls by phase and status",
		},
		[]string{"phase", "status"},
	)

	c.escalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Conflicts escalated to human review by reason",
		},
		[]string{"reason"},
	)

	c.retriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempt_retries_total",
			Help:      "Attempt retries scheduled after transient failures",
		},
	)

	c.conflictsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_created_total",
			Help:      "Conflicts registered with the engine",
		},
	)

	c.inflightAttempts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_attempts",
			Help:      "Negotiation attempts currently holding the per-conflict lock",
		},
	)

	c.queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Conflicts waiting for a worker",
		},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordAttempt records one finished attempt.
func (c *Collector) RecordAttempt(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.attemptsTotal.WithLabelValues(outcome).Inc()
	c.attemptDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordAgentCall records one agent capability call.
func (c *Collector) RecordAgentCall(phase, status string) {
	if c == nil {
		return
	}
	c.agentCallsTotal.WithLabelValues(phase, status).Inc()
}

// RecordEscalation records a handoff to human review.
func (c *Collector) RecordEscalation(reason string) {
	if c == nil {
		return
	}
	c.escalationsTotal.WithLabelValues(reason).Inc()
}

// RecordRetry records a scheduled retry.
func (c *Collector) RecordRetry() {
	if c == nil {
		return
	}
	c.retriesTotal.Inc()
}

// RecordConflictCreated records a new conflict.
func (c *Collector) RecordConflictCreated() {
	if c == nil {
		return
	}
	c.conflictsCreated.Inc()
}

// IncInflight / DecInflight track attempts holding the exclusivity lock.
func (c *Collector) IncInflight() {
	if c == nil {
		return
	}
	c.inflightAttempts.Inc()
}

// DecInflight decrements the in-flight gauge.
func (c *Collector) DecInflight() {
	if c == nil {
		return
	}
	c.inflightAttempts.Dec()
}

// SetQueueDepth reports the number of queued conflicts.
func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}
