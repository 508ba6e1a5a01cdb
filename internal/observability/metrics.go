package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	commandDurationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the report service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Editing metrics
	CommandsTotal        *prometheus.CounterVec
	CommandDuration      *prometheus.HistogramVec
	BlockedActionsTotal  *prometheus.CounterVec
	CascadeRemovalsTotal *prometheus.CounterVec
	ActiveSessions       prometheus.Gauge

	// Persistence and preview metrics
	SavesTotal              *prometheus.CounterVec
	PreviewsTotal           *prometheus.CounterVec
	PreviewCacheHitsTotal   prometheus.Counter
	PreviewCacheMissesTotal prometheus.Counter

	// System metrics
	CatalogReloadTotal   *prometheus.CounterVec
	CatalogSourcesLoaded prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportd_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reportd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reportd_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reportd_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Editing
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportd_commands_total",
			Help: "Total number of editing commands applied to sessions.",
		}, []string{"command", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reportd_command_duration_seconds",
			Help:    "Editing command duration in seconds.",
			Buckets: commandDurationBuckets,
		}, []string{"command"}),
		BlockedActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportd_blocked_actions_total",
			Help: "Total number of save or preview requests refused by gating.",
		}, []string{"action"}),
		CascadeRemovalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportd_cascade_removals_total",
			Help: "Total number of elements removed by data source cascades.",
		}, []string{"kind"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reportd_active_sessions",
			Help: "Number of open editing sessions.",
		}),

		// Persistence and preview
		SavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportd_saves_total",
			Help: "Total number of report saves.",
		}, []string{"status"}),
		PreviewsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportd_previews_total",
			Help: "Total number of preview payloads served.",
		}, []string{"status"}),
		PreviewCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportd_preview_cache_hits_total",
			Help: "Total preview cache hits.",
		}),
		PreviewCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reportd_preview_cache_misses_total",
			Help: "Total preview cache misses.",
		}),

		// System
		CatalogReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportd_catalog_reload_total",
			Help: "Total catalog reloads.",
		}, []string{"status"}),
		CatalogSourcesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reportd_catalog_sources_loaded",
			Help: "Number of data sources in the active catalog.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Editing
		m.CommandsTotal,
		m.CommandDuration,
		m.BlockedActionsTotal,
		m.CascadeRemovalsTotal,
		m.ActiveSessions,
		// Persistence and preview
		m.SavesTotal,
		m.PreviewsTotal,
		m.PreviewCacheHitsTotal,
		m.PreviewCacheMissesTotal,
		// System
		m.CatalogReloadTotal,
		m.CatalogSourcesLoaded,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordCommand records an editing command.
func (m *Metrics) RecordCommand(command, status string, duration time.Duration) {
	m.CommandsTotal.WithLabelValues(command, status).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordBlockedAction records a save or preview refused by gating.
func (m *Metrics) RecordBlockedAction(action string) {
	m.BlockedActionsTotal.WithLabelValues(action).Inc()
}

// RecordCascade records the elements removed alongside a data source.
func (m *Metrics) RecordCascade(visualizations, filters, relationships int) {
	m.CascadeRemovalsTotal.WithLabelValues("visualization").Add(float64(visualizations))
	m.CascadeRemovalsTotal.WithLabelValues("filter").Add(float64(filters))
	m.CascadeRemovalsTotal.WithLabelValues("relationship").Add(float64(relationships))
}

// SetActiveSessions sets the number of open editing sessions.
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSave records a report save attempt.
func (m *Metrics) RecordSave(status string) {
	m.SavesTotal.WithLabelValues(status).Inc()
}

// RecordPreview records a preview request.
func (m *Metrics) RecordPreview(status string) {
	m.PreviewsTotal.WithLabelValues(status).Inc()
}

// RecordPreviewCacheHit records a preview cache hit.
func (m *Metrics) RecordPreviewCacheHit() {
	m.PreviewCacheHitsTotal.Inc()
}

// RecordPreviewCacheMiss records a preview cache miss.
func (m *Metrics) RecordPreviewCacheMiss() {
	m.PreviewCacheMissesTotal.Inc()
}

// RecordCatalogReload records a catalog reload.
func (m *Metrics) RecordCatalogReload(status string) {
	m.CatalogReloadTotal.WithLabelValues(status).Inc()
}

// SetCatalogSourcesLoaded sets the number of loaded data sources.
func (m *Metrics) SetCatalogSourcesLoaded(count int) {
	m.CatalogSourcesLoaded.Set(float64(count))
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
