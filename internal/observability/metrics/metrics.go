package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "polaris"

// Recorder owns a Prometheus registry and the collectors exported by the
// gateway: HTTP traffic, served resources, thumbnail cache activity and index
// rebuilds.
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	servedTotal        *prometheus.CounterVec
	thumbnailsTotal    *prometheus.CounterVec
	rebuildsTotal      *prometheus.CounterVec
	rebuildDuration    prometheus.Gauge
	indexedSongs       prometheus.Gauge
	indexedDirectories prometheus.Gauge
	loginsTotal        *prometheus.CounterVec
}

var (
	defaultMu       sync.RWMutex
	defaultRecorder = New()
)

// New constructs a Recorder with its own registry. Go runtime and process
// collectors are registered alongside the gateway metrics.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed by the gateway",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		servedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "served_total",
			Help:      "Resources dispatched by the serve endpoint, by resource kind",
		}, []string{"kind"}),
		thumbnailsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thumbnails_total",
			Help:      "Thumbnail requests by outcome",
		}, []string{"outcome"}),
		rebuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_rebuilds_total",
			Help:      "Index rebuild attempts by result",
		}, []string{"result"}),
		rebuildDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_rebuild_duration_seconds",
			Help:      "Duration of the last successful index rebuild",
		}),
		indexedSongs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_songs",
			Help:      "Songs in the index after the last successful rebuild",
		}),
		indexedDirectories: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_directories",
			Help:      "Directories in the index after the last successful rebuild",
		}),
		loginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requestsTotal,
		r.requestDuration,
		r.servedTotal,
		r.thumbnailsTotal,
		r.rebuildsTotal,
		r.rebuildDuration,
		r.indexedSongs,
		r.indexedDirectories,
		r.loginsTotal,
	)
	return r
}

// Default returns the process-wide Recorder.
func Default() *Recorder {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRecorder
}

// SetDefault replaces the process-wide Recorder. Nil is ignored.
func SetDefault(r *Recorder) {
	if r == nil {
		return
	}
	defaultMu.Lock()
	defaultRecorder = r
	defaultMu.Unlock()
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRequest records a completed HTTP request.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	route := normalizeRoute(path)
	method = strings.ToUpper(method)
	r.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveServed records a dispatch by the serve endpoint.
func (r *Recorder) ObserveServed(kind string) {
	r.servedTotal.WithLabelValues(normalizeName(kind)).Inc()
}

// ObserveThumbnail records a thumbnail cache outcome.
func (r *Recorder) ObserveThumbnail(outcome string) {
	r.thumbnailsTotal.WithLabelValues(normalizeName(outcome)).Inc()
}

// ObserveLogin records a login attempt.
func (r *Recorder) ObserveLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	r.loginsTotal.WithLabelValues(result).Inc()
}

// ObserveRebuild records an index rebuild. Gauges only move on success.
func (r *Recorder) ObserveRebuild(directories, songs int, duration time.Duration, err error) {
	if err != nil {
		r.rebuildsTotal.WithLabelValues("failure").Inc()
		return
	}
	r.rebuildsTotal.WithLabelValues("success").Inc()
	r.rebuildDuration.Set(duration.Seconds())
	r.indexedSongs.Set(float64(songs))
	r.indexedDirectories.Set(float64(directories))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// normalizeRoute keeps the first two path segments so virtual paths do not
// explode label cardinality: /api/serve/Music%5Ca.flac becomes /api/serve.
func normalizeRoute(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return "/" + strings.Join(parts, "/")
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	Default().ObserveRequest(method, path, status, duration)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return Default().Handler()
}
