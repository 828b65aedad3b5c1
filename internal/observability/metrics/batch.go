package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

// BatchMetrics tracks batch driver items and the outbound calls they make.
type BatchMetrics struct {
	registry *prometheus.Registry
	service  string

	itemTotal    *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec
	itemInFlight *prometheus.GaugeVec
	callTotal    *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

func NewBatchMetrics(service string) *BatchMetrics {
	registry := prometheus.NewRegistry()

	itemTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "affiliations",
			Subsystem: "batch",
			Name:      "items_total",
			Help:      "Total batch items by driver and outcome.",
		},
		[]string{"service", "driver", "outcome"},
	)
	itemDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "affiliations",
			Subsystem: "batch",
			Name:      "item_duration_seconds",
			Help:      "Batch item duration in seconds by driver and outcome.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "driver", "outcome"},
	)
	itemInFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "affiliations",
			Subsystem: "batch",
			Name:      "items_in_flight",
			Help:      "Number of batch items being processed.",
		},
		[]string{"service", "driver"},
	)
	callTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "affiliations",
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Outbound call attempts by operation and status.",
		},
		[]string{"service", "operation", "status"},
	)
	callDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "affiliations",
			Subsystem: "upstream",
			Name:      "call_duration_seconds",
			Help:      "Outbound call attempt duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(itemTotal, itemDuration, itemInFlight, callTotal, callDuration)

	return &BatchMetrics{
		registry:     registry,
		service:      service,
		itemTotal:    itemTotal,
		itemDuration: itemDuration,
		itemInFlight: itemInFlight,
		callTotal:    callTotal,
		callDuration: callDuration,
	}
}

func (m *BatchMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *BatchMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *BatchMetrics) ItemStarted(driver string) {
	m.itemInFlight.WithLabelValues(m.service, driver).Inc()
}

func (m *BatchMetrics) ItemFinished(driver, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.itemInFlight.WithLabelValues(m.service, driver).Dec()
	m.itemTotal.WithLabelValues(m.service, driver, outcome).Inc()
	m.itemDuration.WithLabelValues(m.service, driver, outcome).Observe(duration.Seconds())
}

// ObserveCall satisfies resilience.CallObserver.
func (m *BatchMetrics) ObserveCall(operation string, err error, duration time.Duration) {
	m.callTotal.WithLabelValues(m.service, operation, callStatus(err)).Inc()
	m.callDuration.WithLabelValues(m.service, operation).Observe(duration.Seconds())
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case domain.IsKind(err, domain.ErrTemporary):
		return "temporary"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
