package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes pipeline metrics
type Collector struct {
	registry     *prometheus.Registry
	recordsTotal *prometheus.CounterVec
	pagesTotal   *prometheus.CounterVec
	batchesTotal prometheus.Counter
	runsTotal    *prometheus.CounterVec
	syncDuration prometheus.Histogram
}

// New creates a new metrics collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_records_total",
				Help: "Total number of records processed",
			},
			[]string{"resource", "status"},
		),
		pagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_pages_total",
				Help: "Total number of pages fetched",
			},
			[]string{"resource"},
		),
		batchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sync_batches_total",
				Help: "Total number of batch writes issued",
			},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_runs_total",
				Help: "Total number of sync runs by outcome",
			},
			[]string{"status"},
		),
		syncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sync_resource_duration_seconds",
				Help:    "Time taken to sync one resource",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
	}

	c.registry.MustRegister(c.recordsTotal)
	c.registry.MustRegister(c.pagesTotal)
	c.registry.MustRegister(c.batchesTotal)
	c.registry.MustRegister(c.runsTotal)
	c.registry.MustRegister(c.syncDuration)

	return c
}

// AddRecords adds to the processed record counter for a resource
func (c *Collector) AddRecords(resource, status string, n int) {
	c.recordsTotal.WithLabelValues(resource, status).Add(float64(n))
}

// IncPage increments the fetched page counter for a resource
func (c *Collector) IncPage(resource string) {
	c.pagesTotal.WithLabelValues(resource).Inc()
}

// IncBatch increments the batch write counter
func (c *Collector) IncBatch() {
	c.batchesTotal.Inc()
}

// IncRun increments the run counter for an outcome
func (c *Collector) IncRun(status string) {
	c.runsTotal.WithLabelValues(status).Inc()
}

// ObserveSyncDuration observes one resource sync duration
func (c *Collector) ObserveSyncDuration(d time.Duration) {
	c.syncDuration.Observe(d.Seconds())
}

// StartServer starts the metrics HTTP server
func (c *Collector) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
