// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// sizeBuckets covers 1 KiB to 256 MiB in powers of four.
var sizeBuckets = prometheus.ExponentialBuckets(1024, 4, 10)

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	ResponseBytes    *prometheus.HistogramVec

	UpstreamDuration  prometheus.Histogram
	UpstreamResponses *prometheus.CounterVec
	UpstreamBytes     prometheus.Histogram
	FetchFailures     *prometheus.CounterVec

	TranscodeTotal    *prometheus.CounterVec
	TranscodeDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "media_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "media_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		ResponseBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "media_proxy_http_response_bytes",
			Help:    "Size of response bodies written to callers.",
			Buckets: sizeBuckets,
		}, []string{"path_prefix"}),

		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "media_proxy_upstream_request_duration_seconds",
			Help:    "Time until upstream response headers, in seconds.",
			Buckets: defaultBuckets,
		}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_proxy_upstream_responses_total",
			Help: "Total upstream responses by status code.",
		}, []string{"status_code"}),

		UpstreamBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "media_proxy_upstream_body_bytes",
			Help:    "Size of fully received upstream bodies.",
			Buckets: sizeBuckets,
		}),

		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_proxy_fetch_failures_total",
			Help: "Upstream fetch failures by reason.",
		}, []string{"reason"}),

		TranscodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_proxy_transcode_total",
			Help: "Transcode outcomes.",
		}, []string{"outcome"}),

		TranscodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "media_proxy_transcode_duration_seconds",
			Help:    "Time spent decoding and re-encoding, in seconds.",
			Buckets: defaultBuckets,
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.ResponseBytes,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.UpstreamBytes,
		m.FetchFailures,
		m.TranscodeTotal,
		m.TranscodeDuration,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the reserved path label values (bounded cardinality).
var knownPrefixes = []string{"/healthz", "/proxy/status", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics. Media
// requests may use any path, so everything outside the reserved routes is
// reported as "media".
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "media"
}
