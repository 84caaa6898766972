// Package telemetry wires the proxy's metrics directly to
// prometheus/client_golang. The normative label sets mirror exactly what the
// predecessor exposed via raw prometheus::IntCounterVec, so the collectors
// here bind straight to CounterVec/HistogramVec instead of routing through
// an OpenTelemetry metrics bridge.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blockfrost-proxy/pkg/logging"
)

// durationBuckets is the normative histogram bucket set for request
// duration, covering sub-5ms through 2-minute responses.
var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0, 40.0, 60.0, 90.0, 120.0}

// Metrics holds every collector the request pipeline emits to.
type Metrics struct {
	HTTPTotalRequest    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPCacheHits       *prometheus.CounterVec
	HTTPCacheMiss       *prometheus.CounterVec
}

// NewMetrics registers and returns the proxy's metric collectors against
// registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPTotalRequest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blockfrost_proxy_http_total_request",
			Help: "Total number of proxied HTTP requests.",
		}, []string{"consumer", "namespace", "instance", "status_code", "network", "tier"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blockfrost_proxy_http_request_duration_seconds",
			Help:    "Request handling duration in seconds.",
			Buckets: durationBuckets,
		}, []string{"status_code", "network", "proxied", "resolved_by"}),

		HTTPCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blockfrost_proxy_http_cache_hits",
			Help: "Number of requests served from the response cache.",
		}, []string{"endpoint", "network", "project", "resolved_by"}),

		HTTPCacheMiss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blockfrost_proxy_http_cache_miss",
			Help: "Number of cacheable requests that missed the response cache.",
		}, []string{"endpoint", "network", "project", "resolved_by"}),
	}

	registry.MustRegister(m.HTTPTotalRequest, m.HTTPRequestDuration, m.HTTPCacheHits, m.HTTPCacheMiss)
	return m
}

// ObserveRequest records the total-request counter and duration histogram
// for one completed, non-health request.
func (m *Metrics) ObserveRequest(consumer, namespace, instance, statusCode, network, tier string, proxied, resolvedBy string, duration time.Duration) {
	m.HTTPTotalRequest.WithLabelValues(consumer, namespace, instance, statusCode, network, tier).Inc()
	m.HTTPRequestDuration.WithLabelValues(statusCode, network, proxied, resolvedBy).Observe(duration.Seconds())
}

// ObserveCacheHit records a cache hit for endpoint/network/project.
func (m *Metrics) ObserveCacheHit(endpoint, network, project, resolvedBy string) {
	m.HTTPCacheHits.WithLabelValues(endpoint, network, project, resolvedBy).Inc()
}

// ObserveCacheMiss records a cache miss for endpoint/network/project.
func (m *Metrics) ObserveCacheMiss(endpoint, network, project, resolvedBy string) {
	m.HTTPCacheMiss.WithLabelValues(endpoint, network, project, resolvedBy).Inc()
}

// Server serves the registered collectors on a plain HTTP listener,
// separate from the proxy's TLS listener per spec section 6.
type Server struct {
	httpServer *http.Server
	logger     *logging.Logger
}

// NewServer builds (without starting) a metrics HTTP server bound to addr.
func NewServer(addr string, registry *prometheus.Registry, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Global()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start runs the metrics server until it is shut down. It is meant to be
// called in its own goroutine.
func (s *Server) Start() {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("metrics server failed", "error", err)
	}
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down metrics server: %w", err)
	}
	return nil
}
