package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	marketMetricsOnce sync.Once
	marketRegistry    *MarketMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cyberswap",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cyberswap",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cyberswap",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cyberswap",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// MarketMetrics tracks contract executions handled by the host.
type MarketMetrics struct {
	executions *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	messages   *prometheus.CounterVec
	height     prometheus.Gauge
}

// Market returns the lazily-initialised contract execution registry.
func Market() *MarketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			executions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cyberswap",
				Subsystem: "host",
				Name:      "executions_total",
				Help:      "Contract executions segmented by contract, command and outcome.",
			}, []string{"contract", "command", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cyberswap",
				Subsystem: "host",
				Name:      "failures_total",
				Help:      "Rejected executions segmented by command and error kind.",
			}, []string{"command", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cyberswap",
				Subsystem: "host",
				Name:      "execution_duration_seconds",
				Help:      "Latency distribution of contract executions including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"contract", "command"}),
			messages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cyberswap",
				Subsystem: "host",
				Name:      "custody_messages_total",
				Help:      "Outbound custody transfer messages segmented by kind.",
			}, []string{"kind"}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "cyberswap",
				Subsystem: "host",
				Name:      "block_height",
				Help:      "Height of the most recently committed execution.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.executions,
			marketRegistry.failures,
			marketRegistry.latency,
			marketRegistry.messages,
			marketRegistry.height,
		)
	})
	return marketRegistry
}

// ObserveExecution records a finished execution. kind is empty on success.
func (m *MarketMetrics) ObserveExecution(contract, command, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	if command == "" {
		command = "unknown"
	}
	outcome := "success"
	if kind != "" {
		outcome = "error"
		m.failures.WithLabelValues(command, kind).Inc()
	}
	m.executions.WithLabelValues(contract, command, outcome).Inc()
	m.latency.WithLabelValues(contract, command).Observe(duration.Seconds())
}

// RecordMessages counts outbound custody messages by kind ("bank" or "wasm").
func (m *MarketMetrics) RecordMessages(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messages.WithLabelValues(kind).Add(float64(n))
}

// SetHeight publishes the committed block height.
func (m *MarketMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}
