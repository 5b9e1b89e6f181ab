package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics holds the collectors for invocations and role exchanges.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	roleExchangesTotal *prometheus.CounterVec
}

// Default histogram buckets for invocation duration (in milliseconds)
var defaultBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000}

var promMetrics atomic.Pointer[PrometheusMetrics]

// InitPrometheus creates a fresh registry and makes it the target of the
// Record functions. Until it is called they are no-ops.
func InitPrometheus(namespace string, buckets []float64) *PrometheusMetrics {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of function invocations by outcome",
			},
			[]string{"function", "mode", "status"},
		),

		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_milliseconds",
				Help:      "Round-trip time of function invocations in milliseconds",
				Buckets:   buckets,
			},
			[]string{"function", "mode"},
		),

		roleExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "role_exchanges_total",
				Help:      "Total number of role exchanges by outcome",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		pm.invocationsTotal,
		pm.invocationDuration,
		pm.roleExchangesTotal,
	)

	promMetrics.Store(pm)
	return pm
}

// RecordInvocation counts one invocation. status is "success" or the error
// kind.
func RecordInvocation(function, mode, status string, d time.Duration) {
	pm := promMetrics.Load()
	if pm == nil {
		return
	}
	pm.invocationsTotal.WithLabelValues(function, mode, status).Inc()
	pm.invocationDuration.WithLabelValues(function, mode).Observe(float64(d) / float64(time.Millisecond))
}

// RecordRoleExchange counts one role exchange. result is "success" or the
// error kind.
func RecordRoleExchange(result string) {
	pm := promMetrics.Load()
	if pm == nil {
		return
	}
	pm.roleExchangesTotal.WithLabelValues(result).Inc()
}

// Handler serves the current registry, or 404 before InitPrometheus.
func Handler() http.Handler {
	pm := promMetrics.Load()
	if pm == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// Registry returns the current registry, or nil before InitPrometheus.
func Registry() *prometheus.Registry {
	pm := promMetrics.Load()
	if pm == nil {
		return nil
	}
	return pm.registry
}
