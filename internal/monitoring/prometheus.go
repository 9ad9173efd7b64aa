package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec
	activeConnections    prometheus.Gauge
	apiErrorsTotal       *prometheus.CounterVec
	gatewayRequests      *prometheus.CounterVec
	tradeSyncs           *prometheus.CounterVec
	riskReports          prometheus.Counter
	marketDataUpdates    *prometheus.CounterVec
	cacheRequests        *prometheus.CounterVec
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
			[]string{"method", "endpoint"},
		),
		activeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "websocket_connections_active",
				Help: "Number of active WebSocket connections",
			},
		),
		apiErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"endpoint", "error_type"},
		),
		gatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total number of MT5 gateway requests",
			},
			[]string{"operation", "status"},
		),
		tradeSyncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_syncs_total",
				Help: "Total number of trade history syncs",
			},
			[]string{"status"},
		),
		riskReports: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "risk_reports_total",
				Help: "Total number of portfolio risk reports computed",
			},
		),
		marketDataUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_data_updates_total",
				Help: "Total number of market data updates",
			},
			[]string{"symbol", "data_type"},
		),
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_requests_total",
				Help: "Total number of market data cache lookups",
			},
			[]string{"data_type", "result"},
		),
	}

	prometheus.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		m.activeConnections,
		m.apiErrorsTotal,
		m.gatewayRequests,
		m.tradeSyncs,
		m.riskReports,
		m.marketDataUpdates,
		m.cacheRequests,
	)

	return m
}

// MetricsMiddleware creates a Prometheus metrics middleware
func (m *Metrics) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		m.httpRequestsInFlight.WithLabelValues(c.Request.Method, path).Inc()
		defer m.httpRequestsInFlight.WithLabelValues(c.Request.Method, path).Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)

		if c.Writer.Status() >= 400 {
			errorType := "client_error"
			if c.Writer.Status() >= 500 {
				errorType = "server_error"
			}
			m.apiErrorsTotal.WithLabelValues(path, errorType).Inc()
		}
	}
}

// PrometheusHandler returns the Prometheus metrics handler
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// RecordGatewayRequest records an MT5 gateway call outcome
func (m *Metrics) RecordGatewayRequest(operation, status string) {
	m.gatewayRequests.WithLabelValues(operation, status).Inc()
}

// RecordTradeSync records a trade history sync outcome
func (m *Metrics) RecordTradeSync(status string) {
	m.tradeSyncs.WithLabelValues(status).Inc()
}

// RecordRiskReport records one computed portfolio risk report
func (m *Metrics) RecordRiskReport() {
	m.riskReports.Inc()
}

// RecordMarketDataUpdate records a market data update
func (m *Metrics) RecordMarketDataUpdate(symbol, dataType string) {
	m.marketDataUpdates.WithLabelValues(symbol, dataType).Inc()
}

// RecordCacheRequest records a cache lookup result, hit or miss
func (m *Metrics) RecordCacheRequest(dataType, result string) {
	m.cacheRequests.WithLabelValues(dataType, result).Inc()
}

// SetActiveConnections sets the number of active WebSocket connections
func (m *Metrics) SetActiveConnections(count float64) {
	m.activeConnections.Set(count)
}
