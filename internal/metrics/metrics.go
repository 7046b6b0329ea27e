// Package metrics exposes Prometheus collectors for the brandscan service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal                 *prometheus.CounterVec
	scansTotal                 *prometheus.CounterVec
	scanDurationSeconds        *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	queueRunning               prometheus.Gauge
	queuePending               prometheus.Gauge
	queueRejectionsTotal       *prometheus.CounterVec
	blockedDestinationsTotal   *prometheus.CounterVec
	browserLaunchesTotal       *prometheus.CounterVec
	interceptedRequestsTotal   *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; the Observe helpers call it
// implicitly.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brandscan_pages_total",
				Help: "Total number of pages visited, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		scansTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brandscan_scans_total",
				Help: "Total number of scans finished, labeled by status.",
			},
			[]string{"status"},
		)

		scanDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brandscan_scan_duration_seconds",
				Help:    "Wall time per scan, labeled by status.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		queueRunning = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "brandscan_queue_running",
				Help: "Browser tasks currently holding a queue slot.",
			},
		)

		queuePending = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "brandscan_queue_pending",
				Help: "Browser tasks waiting for a queue slot.",
			},
		)

		queueRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brandscan_queue_rejections_total",
				Help: "Browser tasks rejected by the request queue, labeled by reason.",
			},
			[]string{"reason"},
		)

		blockedDestinationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brandscan_blocked_destinations_total",
				Help: "Outbound destinations refused by the network guard, labeled by reason.",
			},
			[]string{"reason"},
		)

		browserLaunchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brandscan_browser_launches_total",
				Help: "Browser process launches, labeled by result.",
			},
			[]string{"result"},
		)

		interceptedRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brandscan_intercepted_requests_total",
				Help: "In-page requests seen by the interceptor, labeled by decision.",
			},
			[]string{"decision"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brandscan_rate_limit_delays_seconds",
				Help:    "Histogram of per-host politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePage counts a visited page.
func ObservePage(site string, outcome string) {
	Init()
	pagesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveScan records a finished scan.
func ObserveScan(status string, duration time.Duration) {
	Init()
	scansTotal.WithLabelValues(status).Inc()
	scanDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetQueueDepth publishes the request queue occupancy.
func SetQueueDepth(running, pending int) {
	Init()
	queueRunning.Set(float64(running))
	queuePending.Set(float64(pending))
}

// ObserveQueueRejection counts a task rejected as full, timed out or cleared.
func ObserveQueueRejection(reason string) {
	Init()
	queueRejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveBlockedDestination counts a URL or dial refused by the network guard.
func ObserveBlockedDestination(reason string) {
	Init()
	blockedDestinationsTotal.WithLabelValues(reason).Inc()
}

// ObserveBrowserLaunch counts browser process launches.
func ObserveBrowserLaunch(result string) {
	Init()
	browserLaunchesTotal.WithLabelValues(result).Inc()
}

// ObserveInterception counts an intercepted in-page request decision.
func ObserveInterception(decision string) {
	Init()
	interceptedRequestsTotal.WithLabelValues(decision).Inc()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
