package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/brandscan/internal/progress"
)

// PrometheusSink exports scan progress via Prometheus. It owns the collectors
// for scans started/completed/running and per-site page and asset counters.
type PrometheusSink struct {
	scansStarted   prometheus.Counter
	scansCompleted *prometheus.CounterVec
	scansRunning   prometheus.Gauge
	scanRuntime    *prometheus.HistogramVec

	pagesSampled  *prometheus.CounterVec
	assetRequests *prometheus.CounterVec
	assetBytes    *prometheus.CounterVec
	assetDuration *prometheus.HistogramVec

	tracker *scanTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		scansStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brandscan_progress_scans_started_total",
			Help: "Total scans that have started.",
		}),
		scansCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brandscan_progress_scans_completed_total",
			Help: "Total scans completed partitioned by result.",
		}, []string{"result"}),
		scansRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brandscan_progress_scans_running",
			Help: "Current number of running scans.",
		}),
		scanRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brandscan_progress_scan_runtime_seconds",
			Help:    "Wall time per completed scan.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"result"}),
		pagesSampled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brandscan_progress_pages_total",
			Help: "Pages sampled per site.",
		}, []string{"site"}),
		assetRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brandscan_progress_asset_requests_total",
			Help: "Logo fetches partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		assetBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brandscan_progress_asset_bytes_total",
			Help: "Logo bytes downloaded per site.",
		}, []string{"site"}),
		assetDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brandscan_progress_asset_duration_seconds",
			Help:    "Logo fetch duration partitioned by site and status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"site", "status_class"}),
		tracker: newScanTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.scansStarted,
		s.scansCompleted,
		s.scansRunning,
		s.scanRuntime,
		s.pagesSampled,
		s.assetRequests,
		s.assetBytes,
		s.assetDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageScanStart, progress.StageScanDone, progress.StageScanError:
			s.handleScanEvent(evt)
		case progress.StagePageDone:
			s.pagesSampled.WithLabelValues(siteLabel(evt.Site)).Add(float64(max(evt.Pages, 1)))
		case progress.StageAssetDone:
			s.handleAssetEvent(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) handleScanEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageScanStart:
		s.scansStarted.Inc()
		if s.tracker.start(evt.ScanID) {
			s.scansRunning.Inc()
		}
		return
	case progress.StageScanDone:
		s.observeCompletion(evt, "success")
	case progress.StageScanError:
		s.observeCompletion(evt, "error")
	}
	if s.tracker.complete(evt.ScanID) {
		s.scansRunning.Dec()
	}
}

func (s *PrometheusSink) observeCompletion(evt progress.Event, result string) {
	s.scansCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.scanRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleAssetEvent(evt progress.Event) {
	site := siteLabel(evt.Site)
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.assetRequests.WithLabelValues(site, statusClass).Inc()
	if evt.Bytes > 0 {
		s.assetBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.assetDuration.WithLabelValues(site, statusClass).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func siteLabel(site string) string {
	if site == "" {
		return "unknown"
	}
	return site
}

type scanTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newScanTracker() *scanTracker {
	return &scanTracker{running: make(map[[16]byte]struct{})}
}

func (t *scanTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *scanTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
