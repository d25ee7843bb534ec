// Package metrics exposes buffer pool counters to Prometheus. The
// collector reads a stats snapshot at scrape time instead of keeping its
// own counters; a scrape costs one Stats call, which briefly takes the
// cache and lock-table mutexes but never waits on a page lock.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"corestore/pkg/buffer"
)

// BufferPoolCollector implements prometheus.Collector over a
// buffer.Manager.
type BufferPoolCollector struct {
	mgr *buffer.Manager

	resident  *prometheus.Desc
	capacity  *prometheus.Desc
	dirty     *prometheus.Desc
	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	deadlocks *prometheus.Desc
}

// NewBufferPoolCollector builds a collector over mgr.
func NewBufferPoolCollector(mgr *buffer.Manager) *BufferPoolCollector {
	return &BufferPoolCollector{
		mgr: mgr,
		resident: prometheus.NewDesc("corestore_bufferpool_resident_pages",
			"Number of pages currently resident in the buffer pool.", nil, nil),
		capacity: prometheus.NewDesc("corestore_bufferpool_capacity_pages",
			"Maximum number of resident pages.", nil, nil),
		dirty: prometheus.NewDesc("corestore_bufferpool_dirty_pages",
			"Number of resident pages dirtied by live transactions.", nil, nil),
		hits: prometheus.NewDesc("corestore_bufferpool_hits_total",
			"Page requests served from the cache.", nil, nil),
		misses: prometheus.NewDesc("corestore_bufferpool_misses_total",
			"Page requests that went to disk.", nil, nil),
		evictions: prometheus.NewDesc("corestore_bufferpool_evictions_total",
			"Pages evicted from the cache.", nil, nil),
		deadlocks: prometheus.NewDesc("corestore_bufferpool_deadlock_aborts_total",
			"Lock requests aborted by deadlock detection.", nil, nil),
	}
}

func (c *BufferPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.resident
	ch <- c.capacity
	ch <- c.dirty
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.deadlocks
}

func (c *BufferPoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.mgr.Stats()
	ch <- prometheus.MustNewConstMetric(c.resident, prometheus.GaugeValue, float64(s.Resident))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity))
	ch <- prometheus.MustNewConstMetric(c.dirty, prometheus.GaugeValue, float64(s.Dirty))
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(c.deadlocks, prometheus.CounterValue, float64(s.Deadlocks))
}

// Handler returns an HTTP handler serving mgr's metrics on a private
// registry.
func Handler(mgr *buffer.Manager) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewBufferPoolCollector(mgr))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
