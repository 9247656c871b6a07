package malloc

import "sort"

import "github.com/prometheus/client_golang/prometheus"

import "github.com/bnclabs/gomalloc/api"

// Collector export memory accounting of a set of named allocators as
// prometheus metrics. Values are sampled on every scrape.
type Collector struct {
	names      []string
	allocators map[string]api.Allocator
	total      *prometheus.Desc
	used       *prometheus.Desc
	fallbacks  *prometheus.Desc
}

// NewCollector for allocators keyed by name, register the returned
// collector with a prometheus.Registerer.
//
//	<namespace>_total_bytes{allocator}     gauge
//	<namespace>_used_bytes{allocator}      gauge
//	<namespace>_fallbacks_total{allocator} counter, PoolAllocators only
func NewCollector(namespace string, allocators map[string]api.Allocator) *Collector {
	names := make([]string, 0, len(allocators))
	for name := range allocators {
		names = append(names, name)
	}
	sort.Strings(names)

	labels := []string{"allocator"}
	return &Collector{
		names:      names,
		allocators: allocators,
		total: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "total_bytes"),
			"Memory managed by the allocator.", labels, nil,
		),
		used: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "used_bytes"),
			"Memory handed out by the allocator.", labels, nil,
		),
		fallbacks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "fallbacks_total"),
			"Allocations served by the fallback allocator.", labels, nil,
		),
	}
}

// Describe implement prometheus.Collector{} interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.used
	ch <- c.fallbacks
}

// Collect implement prometheus.Collector{} interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, name := range c.names {
		a := c.allocators[name]
		ch <- prometheus.MustNewConstMetric(
			c.total, prometheus.GaugeValue, float64(a.Totalsize()), name,
		)
		ch <- prometheus.MustNewConstMetric(
			c.used, prometheus.GaugeValue, float64(a.Usedsize()), name,
		)
		if fa, ok := a.(interface{ Fallbacks() int64 }); ok {
			ch <- prometheus.MustNewConstMetric(
				c.fallbacks, prometheus.CounterValue, float64(fa.Fallbacks()), name,
			)
		}
	}
}
