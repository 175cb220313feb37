package monitoring

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its own registry so several instances can coexist in one
// process. All methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	requestDuration *prometheus.HistogramVec
	requestCount    *prometheus.CounterVec
	errorCount      *prometheus.CounterVec

	// Ledger metrics
	tradeCount    *prometheus.CounterVec
	tradeDuration *prometheus.HistogramVec

	// Quote metrics
	cacheRequests  *prometheus.CounterVec
	upstreamFetch  *prometheus.CounterVec
	upstreamTiming *prometheus.HistogramVec

	// Stream metrics
	streamClients prometheus.Gauge
	streamDropped *prometheus.CounterVec

	// System metrics
	memoryUsage    *prometheus.GaugeVec
	goroutineCount prometheus.Gauge
}

// NewMetrics creates a metrics collector registered on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"handler", "method", "status"},
		),

		requestCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		errorCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "error_count_total",
				Help:      "Total number of errors returned to clients",
			},
			[]string{"code"},
		),

		tradeCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_total",
				Help:      "Trades attempted, by type and outcome",
			},
			[]string{"type", "outcome"},
		),

		tradeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trade_duration_seconds",
				Help:      "Time to execute a trade including quote resolution",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"type"},
		),

		cacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quote_cache_requests_total",
				Help:      "Quote cache lookups by result (hit, miss, stale)",
			},
			[]string{"result"},
		),

		upstreamFetch: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quote_upstream_fetches_total",
				Help:      "Upstream quote fetches by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),

		upstreamTiming: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "quote_upstream_fetch_duration_seconds",
				Help:      "Duration of upstream quote fetches",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),

		streamClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stream_clients",
				Help:      "Connected streaming clients",
			},
		),

		streamDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_dropped_total",
				Help:      "Streaming clients disconnected for falling behind, by message type",
			},
			[]string{"type"},
		),

		memoryUsage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage",
			},
			[]string{"type"},
		),

		goroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutine_count",
				Help:      "Number of goroutines",
			},
		),
	}
}

// ObserveRequest records HTTP request metrics
func (m *Metrics) ObserveRequest(handler, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(handler, method, code).Observe(duration.Seconds())
	m.requestCount.WithLabelValues(handler, method, code).Inc()
}

// ObserveError records an error code returned to a client
func (m *Metrics) ObserveError(errorCode string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(errorCode).Inc()
}

// ObserveTrade records a trade attempt. outcome is "executed" or the
// rejection's error code.
func (m *Metrics) ObserveTrade(tradeType, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.tradeCount.WithLabelValues(tradeType, outcome).Inc()
	m.tradeDuration.WithLabelValues(tradeType).Observe(duration.Seconds())
}

// ObserveCacheRequest counts a quote cache lookup
func (m *Metrics) ObserveCacheRequest(result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// ObserveUpstreamFetch records one call to a market data provider
func (m *Metrics) ObserveUpstreamFetch(provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamFetch.WithLabelValues(provider, outcome).Inc()
	m.upstreamTiming.WithLabelValues(provider).Observe(duration.Seconds())
}

// SetStreamClients records how many streaming clients are connected.
func (m *Metrics) SetStreamClients(n int) {
	if m == nil {
		return
	}
	m.streamClients.Set(float64(n))
}

// ObserveStreamDrop records a client dropped because its send buffer was
// full when a message of msgType was due.
func (m *Metrics) ObserveStreamDrop(msgType string) {
	if m == nil {
		return
	}
	m.streamDropped.WithLabelValues(msgType).Inc()
}

// UpdateSystemMetrics updates system-level metrics
func (m *Metrics) UpdateSystemMetrics() {
	if m == nil {
		return
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m.memoryUsage.WithLabelValues("heap_alloc").Set(float64(mem.HeapAlloc))
	m.memoryUsage.WithLabelValues("heap_inuse").Set(float64(mem.HeapInuse))
	m.memoryUsage.WithLabelValues("heap_idle").Set(float64(mem.HeapIdle))
	m.memoryUsage.WithLabelValues("heap_released").Set(float64(mem.HeapReleased))

	m.goroutineCount.Set(float64(runtime.NumGoroutine()))
}

// StartMetricsCollection refreshes system metrics every interval until
// stop is closed.
func (m *Metrics) StartMetricsCollection(interval time.Duration, stop <-chan struct{}) {
	if m == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.UpdateSystemMetrics()
			}
		}
	}()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsHandler returns an HTTP handler for exposing metrics
func (m *Metrics) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
