package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry and the application
// metrics exported on /metrics.
type MetricsService struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	requestsDecided   *prometheus.CounterVec
	appointmentsBooked prometheus.Counter
}

// NewMetricsService builds the registry and registers all collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	s := &MetricsService{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses.",
		}),
		requestsDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_requests_decided_total",
			Help: "Requests decided by type and verdict.",
		}, []string{"type", "status"}),
		appointmentsBooked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appointments_booked_total",
			Help: "Total appointments booked.",
		}),
	}

	registry.MustRegister(
		s.httpRequests,
		s.httpDuration,
		s.cacheHits,
		s.cacheMisses,
		s.requestsDecided,
		s.appointmentsBooked,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "goroutines",
			Help: "Current number of goroutines.",
		}, func() float64 { return float64(runtime.NumGoroutine()) }),
	)

	return s
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	s.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	s.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// CacheHit counts a cache hit.
func (s *MetricsService) CacheHit() { s.cacheHits.Inc() }

// CacheMiss counts a cache miss.
func (s *MetricsService) CacheMiss() { s.cacheMisses.Inc() }

// RequestDecided counts a workflow verdict.
func (s *MetricsService) RequestDecided(requestType, status string) {
	s.requestsDecided.WithLabelValues(requestType, status).Inc()
}

// AppointmentBooked counts a successful booking.
func (s *MetricsService) AppointmentBooked() { s.appointmentsBooked.Inc() }

// RegisterQueueDepth exposes a gauge backed by the given depth reader.
func (s *MetricsService) RegisterQueueDepth(name string, depth func() int) {
	s.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "job_queue_depth",
		Help:        "Jobs waiting in an in-memory queue.",
		ConstLabels: prometheus.Labels{"queue": name},
	}, func() float64 { return float64(depth()) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (s *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
