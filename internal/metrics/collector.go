package metrics

import (
	"net/http"
	"time"

	"lascrawl/internal/progress"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes metrics
type Collector struct {
	registry          *prometheus.Registry
	itemsTotal        *prometheus.CounterVec
	filesTotal        *prometheus.CounterVec
	bytesTotal        prometheus.Counter
	inflightDownloads prometheus.Gauge
	itemDuration      prometheus.Histogram
	progressTracker   *progress.Tracker
}

// New creates a new metrics collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lascrawl_items_total",
				Help: "Work items processed, by outcome",
			},
			[]string{"outcome"},
		),
		filesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lascrawl_files_total",
				Help: "Download candidates seen, by classification",
			},
			[]string{"class"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lascrawl_bytes_total",
				Help: "Total bytes downloaded",
			},
		),
		inflightDownloads: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lascrawl_inflight_downloads",
				Help: "Number of downloads in progress",
			},
		),
		itemDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lascrawl_item_duration_seconds",
				Help:    "Time taken to crawl one work item",
				Buckets: prometheus.DefBuckets,
			},
		),
		progressTracker: progress.NewTracker(),
	}

	c.registry.MustRegister(c.itemsTotal, c.filesTotal, c.bytesTotal, c.inflightDownloads, c.itemDuration)

	return c
}

// IncComplete counts an item that finished normally
func (c *Collector) IncComplete() {
	c.itemsTotal.WithLabelValues("complete").Inc()
	c.progressTracker.AddComplete()
}

// IncFailed counts an item that ended in error
func (c *Collector) IncFailed(kind string) {
	c.itemsTotal.WithLabelValues("error_" + kind).Inc()
	c.progressTracker.AddFailed()
}

// IncCandidate counts a classified candidate
func (c *Collector) IncCandidate(class string) {
	c.filesTotal.WithLabelValues(class).Inc()
}

// AddFile counts a file written to disk
func (c *Collector) AddFile(bytes int64) {
	c.bytesTotal.Add(float64(bytes))
	c.progressTracker.AddFile(bytes)
}

// DownloadStarted and DownloadFinished track in-flight downloads
func (c *Collector) DownloadStarted() {
	c.inflightDownloads.Inc()
}

func (c *Collector) DownloadFinished() {
	c.inflightDownloads.Dec()
}

// ObserveDuration observes the time spent on one item
func (c *Collector) ObserveDuration(duration time.Duration) {
	c.itemDuration.Observe(duration.Seconds())
}

// Handler serves the collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (c *Collector) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return http.ListenAndServe(addr, mux)
}

// GetProgressTracker returns the progress tracker
func (c *Collector) GetProgressTracker() *progress.Tracker {
	return c.progressTracker
}

// SetTotalItems sets the number of items this run will attempt
func (c *Collector) SetTotalItems(items int64) {
	c.progressTracker.SetTotal(items)
}

// SetCurrentPage records the sub-page being scanned
func (c *Collector) SetCurrentPage(key string) {
	c.progressTracker.SetCurrentPage(key)
}
