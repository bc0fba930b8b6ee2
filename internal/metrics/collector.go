// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and updates the orchestrator's Prometheus metrics.
type Collector struct {
	sessionsActive      prometheus.Gauge
	sessionsTotal       *prometheus.CounterVec
	turnsTotal          *prometheus.CounterVec
	completionDuration  *prometheus.HistogramVec
	persistenceFailures *prometheus.CounterVec
	eventsTotal         *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector with all metrics registered under the
// given namespace on the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of live in-memory conversation sessions",
	})

	c.sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total conversation sessions started",
		},
		[]string{"config_id"},
	)

	c.turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total agent turns generated",
		},
		[]string{"config_id", "agent_role"},
	)

	c.completionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Latency of completion-service calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	c.persistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Total non-fatal store write failures",
		},
		[]string{"backend"},
	)

	c.eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total lifecycle events emitted to consumers",
		},
		[]string{"type"},
	)

	return c
}

// SessionOpened records a session entering the in-memory registry.
func (c *Collector) SessionOpened(configID string) {
	c.sessionsActive.Inc()
	c.sessionsTotal.WithLabelValues(configID).Inc()
}

// SessionClosed records a session leaving the registry.
func (c *Collector) SessionClosed() {
	c.sessionsActive.Dec()
}

// TurnGenerated records one completed agent turn.
func (c *Collector) TurnGenerated(configID, agentRole string) {
	c.turnsTotal.WithLabelValues(configID, agentRole).Inc()
}

// CompletionObserved records the latency of one completion call.
func (c *Collector) CompletionObserved(provider string, elapsed time.Duration) {
	c.completionDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// PersistenceFailed records a non-fatal store write failure.
func (c *Collector) PersistenceFailed(backend string) {
	c.persistenceFailures.WithLabelValues(backend).Inc()
}

// EventEmitted records one lifecycle event handed to a consumer.
func (c *Collector) EventEmitted(eventType string) {
	c.eventsTotal.WithLabelValues(eventType).Inc()
}
