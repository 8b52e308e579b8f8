package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SearchMetrics holds the service's private registry: HTTP server series
// plus the retrieval pipeline series. It implements ports.SearchObserver.
type SearchMetrics struct {
	registry    *prometheus.Registry
	serviceName string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchTotal         *prometheus.CounterVec
	searchDuration      *prometheus.HistogramVec
	searchResults       *prometheus.HistogramVec
	sourceFailuresTotal *prometheus.CounterVec
	resultCacheTotal    *prometheus.CounterVec
	fallbackScoresTotal prometheus.Counter
}

func NewSearchMetrics(service string) *SearchMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsearch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsearch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docsearch",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsearch",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total completed search requests.",
		},
		[]string{"service"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsearch",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "End-to-end search pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsearch",
			Subsystem: "search",
			Name:      "results_returned",
			Help:      "Distribution of results returned per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	sourceFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsearch",
			Subsystem: "search",
			Name:      "source_failures_total",
			Help:      "Retrieval path failures by source.",
		},
		[]string{"service", "source"},
	)
	resultCacheTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsearch",
			Subsystem: "cache",
			Name:      "result_lookups_total",
			Help:      "Whole-result cache lookups by outcome.",
		},
		[]string{"service", "outcome"},
	)
	fallbackScoresTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docsearch",
			Subsystem: "search",
			Name:      "fallback_scores_total",
			Help:      "Candidates scored via the distance-based fallback.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchTotal,
		searchDuration,
		searchResults,
		sourceFailuresTotal,
		resultCacheTotal,
		fallbackScoresTotal,
	)

	return &SearchMetrics{
		registry:            registry,
		serviceName:         service,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		searchTotal:         searchTotal,
		searchDuration:      searchDuration,
		searchResults:       searchResults,
		sourceFailuresTotal: sourceFailuresTotal,
		resultCacheTotal:    resultCacheTotal,
		fallbackScoresTotal: fallbackScoresTotal,
	}
}

func (m *SearchMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *SearchMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *SearchMetrics) RecordSourceFailure(source string) {
	if source == "" {
		source = "unknown"
	}
	m.sourceFailuresTotal.WithLabelValues(m.serviceName, source).Inc()
}

func (m *SearchMetrics) RecordResultCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.resultCacheTotal.WithLabelValues(m.serviceName, outcome).Inc()
}

func (m *SearchMetrics) RecordSearch(durationSeconds float64, resultCount int) {
	m.searchTotal.WithLabelValues(m.serviceName).Inc()
	m.searchDuration.WithLabelValues(m.serviceName).Observe(durationSeconds)
	m.searchResults.WithLabelValues(m.serviceName).Observe(float64(resultCount))
}

func (m *SearchMetrics) RecordFallbackScore() {
	m.fallbackScoresTotal.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
