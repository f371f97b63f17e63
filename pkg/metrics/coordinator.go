package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
)

const outcomeOK = "ok"

// CoordinatorMetrics records the duration and outcome of multi-step operations.
type CoordinatorMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// NewCoordinatorMetrics registers the coordinator metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewCoordinatorMetrics(reg prometheus.Registerer) *CoordinatorMetrics {
	if reg == nil {
		return &CoordinatorMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "barter",
		Name:      "operation_duration_seconds",
		Help:      "Duration of transactional operations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barter",
		Name:      "operation_total",
		Help:      "Transactional operations by outcome code.",
	}, []string{"operation", "outcome"})
	reg.MustRegister(duration, outcomes)
	return &CoordinatorMetrics{
		duration: duration,
		outcomes: outcomes,
	}
}

// Observe records one finished operation. err decides the outcome label.
func (c *CoordinatorMetrics) Observe(operation string, started time.Time, err error) {
	if c == nil || c.duration == nil {
		return
	}
	op := normalizeLabel(operation)
	c.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	c.outcomes.WithLabelValues(op, outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	if err == nil {
		return outcomeOK
	}
	return string(pkgerrors.CodeOf(err))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
