package tandem

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle and
// the admission queue. It is safe for concurrent use, and every method is a
// no-op on a nil receiver.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	queuePending  *prometheus.GaugeVec
	queueRunning  *prometheus.GaugeVec
	queueWait     *prometheus.HistogramVec
	queueCleared  *prometheus.CounterVec
	admissionRate *prometheus.GaugeVec

	interceptorErrors *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec

	registry prometheus.Registerer
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *MetricsCollector
)

// NewMetricsCollector returns the collector registered on the default
// registerer. It is created on first use and shared by every caller; queue
// series are told apart by their queue label.
func NewMetricsCollector() *MetricsCollector {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetricsCollectorWithRegistry creates collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	return &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tandem",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests completed by the client",
			},
			[]string{"method", "status_code", "endpoint", "transport"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tandem",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds, queue wait included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint", "transport"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tandem",
				Name:      "requests_in_flight",
				Help:      "Number of requests between interceptor entry and settlement",
			},
			[]string{"method", "endpoint"},
		),
		queuePending: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tandem",
				Subsystem: "queue",
				Name:      "pending",
				Help:      "Number of requests waiting for admission",
			},
			[]string{"queue"},
		),
		queueRunning: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tandem",
				Subsystem: "queue",
				Name:      "running",
				Help:      "Number of transport calls currently executing",
			},
			[]string{"queue"},
		),
		queueWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tandem",
				Subsystem: "queue",
				Name:      "wait_seconds",
				Help:      "Time between enqueue and admission",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 15),
			},
			[]string{"queue"},
		),
		queueCleared: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tandem",
				Subsystem: "queue",
				Name:      "cleared_total",
				Help:      "Pending requests rejected by Clear",
			},
			[]string{"queue"},
		),
		admissionRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tandem",
				Subsystem: "queue",
				Name:      "admission_tokens",
				Help:      "Available admission limiter tokens",
			},
			[]string{"queue"},
		),
		interceptorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tandem",
				Name:      "interceptor_errors_total",
				Help:      "Errors raised by interceptors, by stage",
			},
			[]string{"stage"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tandem",
				Name:      "errors_total",
				Help:      "Total number of errors returned to callers, by type",
			},
			[]string{"type", "method", "endpoint"},
		),
		registry: registry,
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint, transport string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint, transport).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint, transport).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordQueueDepth sets the pending and running gauges of queue.
func (mc *MetricsCollector) RecordQueueDepth(queue string, pending, running int) {
	if mc == nil {
		return
	}
	mc.queuePending.WithLabelValues(queue).Set(float64(pending))
	mc.queueRunning.WithLabelValues(queue).Set(float64(running))
}

// RecordQueueWait observes the time an item spent pending.
func (mc *MetricsCollector) RecordQueueWait(queue string, d time.Duration) {
	if mc == nil {
		return
	}
	mc.queueWait.WithLabelValues(queue).Observe(d.Seconds())
}

// RecordQueueCleared counts items rejected by Clear.
func (mc *MetricsCollector) RecordQueueCleared(queue string, n int) {
	if mc == nil {
		return
	}
	mc.queueCleared.WithLabelValues(queue).Add(float64(n))
}

// RecordAdmissionTokens sets the available admission limiter tokens.
func (mc *MetricsCollector) RecordAdmissionTokens(queue string, tokens float64) {
	if mc == nil {
		return
	}
	mc.admissionRate.WithLabelValues(queue).Set(tokens)
}

// RecordInterceptorError counts an error raised by an interceptor stage.
func (mc *MetricsCollector) RecordInterceptorError(stage string) {
	if mc == nil {
		return
	}
	mc.interceptorErrors.WithLabelValues(stage).Inc()
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}

// GetRegistry exposes the registerer the collector was built on.
func (mc *MetricsCollector) GetRegistry() prometheus.Registerer {
	if mc == nil {
		return nil
	}
	return mc.registry
}
