// Package metrics exports engine outcomes as Prometheus metrics.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jacentio/persist/engine"
	"github.com/jacentio/persist/result"
)

const namespace = "persist"

// Observer is an engine.Observer that counts results and times operations.
type Observer struct {
	results  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ engine.Observer = (*Observer)(nil)

// NewObserver registers the collectors with reg. A nil reg uses the default registerer.
func NewObserver(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Observer{
		results: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_total",
				Help:      "Total number of finished operations by outcome",
			},
			[]string{"entity_type", "operation", "outcome", "error_type"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of engine operations in seconds",
				Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"entity_type", "operation"},
		),
	}
}

// Observe implements engine.Observer.
func (o *Observer) Observe(entityType string, op result.RequestedOperation, outcome engine.Outcome, elapsed time.Duration) {
	operation := strings.ToLower(op.String())
	errorType := ""
	if outcome.ErrorType != 0 {
		errorType = outcome.ErrorType.String()
	}
	o.results.WithLabelValues(entityType, operation, outcome.Label(), errorType).Inc()
	o.duration.WithLabelValues(entityType, operation).Observe(elapsed.Seconds())
}
